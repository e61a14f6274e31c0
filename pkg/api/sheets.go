package api

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/lemonberrylabs/sheetroll/pkg/parser"
	"github.com/lemonberrylabs/sheetroll/pkg/roll"
	"github.com/lemonberrylabs/sheetroll/pkg/sheet"
	"github.com/lemonberrylabs/sheetroll/pkg/store"
)

// --- Sheet Handlers ---

// sheetFromBody accepts either a sheet document (JSON, or YAML with a YAML
// content type) or {"sourceContents": "<yaml>"}.
func sheetFromBody(c *fiber.Ctx) (*sheet.Sheet, error) {
	body := c.Body()
	var wrapped struct {
		SourceContents string `json:"sourceContents"`
	}
	if err := json.Unmarshal(body, &wrapped); err == nil && wrapped.SourceContents != "" {
		body = []byte(wrapped.SourceContents)
	}
	if len(body) == 0 {
		return nil, &parser.ParseError{Message: "request body is empty"}
	}
	return parser.Parse(body)
}

func (s *Server) createSheet(c *fiber.Ctx) error {
	sh, err := sheetFromBody(c)
	if err != nil {
		return errorResponse(c, 400, fmt.Sprintf("invalid sheet definition: %v", err))
	}
	id := c.Query("sheetId")
	if id == "" {
		id = sh.ID
	}

	rec, err := s.store.CreateSheet(c.UserContext(), id, sh)
	if err != nil {
		return storeError(c, err)
	}
	s.log.Info().Str("sheet", rec.ID).Msg("sheet created")
	return c.Status(200).JSON(recordToJSON(rec))
}

func (s *Server) listSheets(c *fiber.Ctx) error {
	records, err := s.store.ListSheets(c.UserContext())
	if err != nil {
		return storeError(c, err)
	}
	items := make([]fiber.Map, len(records))
	for i, rec := range records {
		items[i] = recordToJSON(rec)
	}
	return c.JSON(fiber.Map{
		"sheets": items,
	})
}

func (s *Server) getSheet(c *fiber.Ctx) error {
	rec, err := s.store.GetSheet(c.UserContext(), c.Params("sheet"))
	if err != nil {
		return storeError(c, err)
	}
	return c.JSON(recordToJSON(rec))
}

func (s *Server) updateSheet(c *fiber.Ctx) error {
	sh, err := sheetFromBody(c)
	if err != nil {
		return errorResponse(c, 400, fmt.Sprintf("invalid sheet definition: %v", err))
	}
	rec, err := s.store.UpdateSheet(c.UserContext(), c.Params("sheet"), sh)
	if err != nil {
		return storeError(c, err)
	}
	return c.JSON(recordToJSON(rec))
}

func (s *Server) deleteSheet(c *fiber.Ctx) error {
	id := c.Params("sheet")
	if err := s.store.DeleteSheet(c.UserContext(), id); err != nil {
		return storeError(c, err)
	}
	return c.JSON(fiber.Map{
		"name": id,
		"done": true,
	})
}

func (s *Server) sheetContext(c *fiber.Ctx) error {
	rec, err := s.store.GetSheet(c.UserContext(), c.Params("sheet"))
	if err != nil {
		return storeError(c, err)
	}
	active := c.Query("active", rec.Sheet.ActiveSubSheetID)
	if active != "" && rec.Sheet.SubSheet(active) == nil {
		return errorResponse(c, 404, fmt.Sprintf("sub-sheet '%s' not found", active))
	}

	e, _, _, err := s.engine(nil)
	if err != nil {
		return errorResponse(c, 500, err.Error())
	}
	res := e.BuildContextFor(rec.Sheet, active)
	return c.JSON(res)
}

type rollItemRequest struct {
	Format roll.FormatConfig `json:"format"`
	Seed   *int64            `json:"seed"`
}

func parseRollItemRequest(c *fiber.Ctx) (rollItemRequest, error) {
	var req rollItemRequest
	if len(c.Body()) == 0 {
		return req, nil
	}
	err := c.BodyParser(&req)
	return req, err
}

func (s *Server) rollProperty(c *fiber.Ctx) error {
	req, err := parseRollItemRequest(c)
	if err != nil {
		return errorResponse(c, 400, fmt.Sprintf("invalid request body: %v", err))
	}
	rec, err := s.store.GetSheet(c.UserContext(), c.Params("sheet"))
	if err != nil {
		return storeError(c, err)
	}

	e, seed, source, err := s.engine(req.Seed)
	if err != nil {
		return errorResponse(c, 500, err.Error())
	}
	scope := c.Query("scope", sheet.ScopeGlobal)
	pr, err := e.RollProperty(rec.Sheet, scope, c.Params("property"), req.Format)
	if err != nil {
		return storeError(c, err)
	}
	return outcomeResponse(c, pr.Outcome, seed, source, nil)
}

func (s *Server) rollAction(c *fiber.Ctx) error {
	req, err := parseRollItemRequest(c)
	if err != nil {
		return errorResponse(c, 400, fmt.Sprintf("invalid request body: %v", err))
	}
	rec, err := s.store.GetSheet(c.UserContext(), c.Params("sheet"))
	if err != nil {
		return storeError(c, err)
	}

	e, seed, source, err := s.engine(req.Seed)
	if err != nil {
		return errorResponse(c, 500, err.Error())
	}
	ar, err := e.RollAction(rec.Sheet, c.Params("subsheet"), c.Params("action"), req.Format)
	if err != nil {
		return storeError(c, err)
	}
	return outcomeResponse(c, ar.Outcome, seed, source, fiber.Map{
		"rollExpression": ar.Expression,
		"modifications":  ar.Modifications,
	})
}

// --- Library Handlers ---

func (s *Server) putLibrary(c *fiber.Ctx) error {
	lib, err := parser.ParseLibrary(c.Body())
	if err != nil {
		return errorResponse(c, 400, fmt.Sprintf("invalid library definition: %v", err))
	}
	lib.ID = c.Params("library")
	if err := s.store.PutLibrary(c.UserContext(), lib); err != nil {
		return storeError(c, err)
	}
	return c.JSON(lib)
}

func (s *Server) getLibrary(c *fiber.Ctx) error {
	lib, err := s.store.GetLibrary(c.UserContext(), c.Params("library"))
	if err != nil {
		return storeError(c, err)
	}
	return c.JSON(lib)
}

func (s *Server) listLibraries(c *fiber.Ctx) error {
	libs, err := s.store.ListLibraries(c.UserContext())
	if err != nil {
		return storeError(c, err)
	}
	return c.JSON(fiber.Map{
		"libraries": libs,
	})
}

// --- Helpers ---

func recordToJSON(rec *store.SheetRecord) fiber.Map {
	return fiber.Map{
		"name":       rec.ID,
		"sheet":      rec.Sheet,
		"revisionId": rec.Revision,
		"createTime": rec.CreateTime.Format(time.RFC3339),
		"updateTime": rec.UpdateTime.Format(time.RFC3339),
	}
}
