package integration

import (
	"net/http"
	"strings"
	"testing"
)

func TestRoll_Arithmetic(t *testing.T) {
	requireServer(t)

	tests := []struct {
		expr string
		ctx  map[string]int
		want int
	}{
		{"2 + 3 * 4", nil, 14},
		{"(2 + 3) * 4", nil, 20},
		{"7 / 2", nil, 3},
		{"-7 / 2", nil, -4},
		{"str + 2", map[string]int{"str": 16}, 18},
		{"max(1, level, 3)", map[string]int{"level": 5}, 5},
		{"Damage: 10 - 4", nil, 6},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			status, result := rollExpression(t, tt.expr, tt.ctx, nil)
			if status != http.StatusOK {
				t.Fatalf("expected 200, got %d: %v", status, result)
			}
			assertValue(t, result, tt.want)
		})
	}
}

func TestRoll_DiceWithinBounds(t *testing.T) {
	requireServer(t)

	for i := 0; i < 20; i++ {
		status, result := rollExpression(t, "3d6", nil, nil)
		if status != http.StatusOK {
			t.Fatalf("expected 200, got %d", status)
		}
		v := int(result["value"].(float64))
		if v < 3 || v > 18 {
			t.Fatalf("3d6 rolled %d", v)
		}
		if rolls, _ := result["rolls"].([]interface{}); len(rolls) != 3 {
			t.Fatalf("expected 3 rolls, got %v", result["rolls"])
		}
		if result["seedSource"] != "server" {
			t.Errorf("expected server seed, got %v", result["seedSource"])
		}
	}
}

func TestRoll_SeedIsReproducible(t *testing.T) {
	requireServer(t)

	seed := int64(1234)
	_, first := rollExpression(t, "10d20r<3", nil, &seed)
	_, second := rollExpression(t, "10d20r<3", nil, &seed)
	if first["formattedString"] != second["formattedString"] || first["value"] != second["value"] {
		t.Errorf("same seed gave different rolls: %v vs %v", first["formattedString"], second["formattedString"])
	}
	if first["seedSource"] != "client" {
		t.Errorf("expected client seed, got %v", first["seedSource"])
	}
}

func TestRoll_Errors(t *testing.T) {
	requireServer(t)

	tests := []struct {
		name string
		expr string
		want string
	}{
		{"undefined variable", "nope + 1", "undefined variable 'nope'"},
		{"division by zero", "1 / 0", "division by zero"},
		{"parse error", "1 +", ""},
		{"too many dice", "5000d6", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, result := rollExpression(t, tt.expr, nil, nil)
			if status != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d: %v", status, result)
			}
			if !strings.Contains(strings.ToLower(errorMessage(result)), tt.want) {
				t.Errorf("error %q does not contain %q", errorMessage(result), tt.want)
			}
		})
	}
}

func TestSheets_Lifecycle(t *testing.T) {
	requireServer(t)

	id := uniqueID("hero")
	createSheet(t, id, heroSheet)

	status, got := doJSON(t, "GET", apiURL("sheets/"+id), nil)
	if status != http.StatusOK || got["name"] != id {
		t.Fatalf("get sheet: %d %v", status, got)
	}
	firstRev := got["revisionId"]

	status, _ = doJSON(t, "PUT", apiURL("sheets/"+id), map[string]interface{}{
		"sourceContents": "global:\n  - level: 9\n",
	})
	if status != http.StatusOK {
		t.Fatalf("update sheet: %d", status)
	}
	_, got = doJSON(t, "GET", apiURL("sheets/"+id), nil)
	if got["revisionId"] == firstRev {
		t.Errorf("expected a new revision after update, still %v", firstRev)
	}

	status, _ = doJSON(t, "POST", apiURL("sheets?sheetId="+id), map[string]interface{}{
		"sourceContents": heroSheet,
	})
	if status != http.StatusConflict {
		t.Errorf("expected 409 on duplicate create, got %d", status)
	}

	status, _ = doJSON(t, "DELETE", apiURL("sheets/"+id), nil)
	if status != http.StatusOK {
		t.Fatalf("delete sheet: %d", status)
	}
	status, _ = doJSON(t, "GET", apiURL("sheets/"+id), nil)
	if status != http.StatusNotFound {
		t.Errorf("expected 404 after delete, got %d", status)
	}
}

func TestSheets_InvalidDefinition(t *testing.T) {
	requireServer(t)

	status, result := doJSON(t, "POST", apiURL("sheets?sheetId="+uniqueID("bad")), map[string]interface{}{
		"sourceContents": "global:\n  - id: a\n    bogus: 1\n",
	})
	if status != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", status)
	}
	if !strings.Contains(errorMessage(result), "unknown key 'bogus'") {
		t.Errorf("unexpected message %q", errorMessage(result))
	}
}

func TestSheets_Context(t *testing.T) {
	requireServer(t)

	id := uniqueID("ctx")
	createSheet(t, id, heroSheet)

	status, result := doJSON(t, "GET", apiURL("sheets/"+id+"/context"), nil)
	if status != http.StatusOK {
		t.Fatalf("expected 200, got %d", status)
	}
	ctx, _ := result["context"].(map[string]interface{})
	want := map[string]float64{"total": 8, "hp": 40, "strMod": 3, "human.strMod": 3, "wolf.strMod": 1}
	for k, v := range want {
		if ctx[k] != v {
			t.Errorf("%s = %v, want %v", k, ctx[k], v)
		}
	}
	if passes, _ := result["passes"].(float64); passes != 2 {
		t.Errorf("expected 2 passes, got %v", result["passes"])
	}

	_, result = doJSON(t, "GET", apiURL("sheets/"+id+"/context?active=wolf"), nil)
	ctx, _ = result["context"].(map[string]interface{})
	if ctx["strMod"] != float64(1) {
		t.Errorf("expected wolf strMod alias 1, got %v", ctx["strMod"])
	}

	status, _ = doJSON(t, "GET", apiURL("sheets/"+id+"/context?active=dragon"), nil)
	if status != http.StatusNotFound {
		t.Errorf("expected 404 for unknown sub-sheet, got %d", status)
	}
}

func TestSheets_CircularDependency(t *testing.T) {
	requireServer(t)

	id := uniqueID("loop")
	createSheet(t, id, "global:\n  - a: b + 1\n  - b: a + 1\n  - c: 2\n")

	_, result := doJSON(t, "GET", apiURL("sheets/"+id+"/context"), nil)
	unresolved, _ := result["unresolved"].([]interface{})
	if len(unresolved) != 2 {
		t.Errorf("expected 2 unresolved properties, got %v", result["unresolved"])
	}
}

func TestSheets_RollPropertyAndAction(t *testing.T) {
	requireServer(t)

	id := uniqueID("rolls")
	createSheet(t, id, heroSheet)

	status, result := doJSON(t, "POST", apiURL("sheets/"+id+"/properties/hp:roll"), nil)
	if status != http.StatusOK {
		t.Fatalf("roll property: %d %v", status, result)
	}
	assertValue(t, result, 40)
	if result["title"] != "Hit Points" {
		t.Errorf("expected title 'Hit Points', got %v", result["title"])
	}

	status, result = doJSON(t, "POST", apiURL("sheets/"+id+"/properties/strMod:roll?scope=wolf"), nil)
	if status != http.StatusOK {
		t.Fatalf("roll scoped property: %d %v", status, result)
	}
	assertValue(t, result, 1)

	status, result = doJSON(t, "POST", apiURL("sheets/"+id+"/subsheets/human/actions/firebolt:roll"), map[string]interface{}{})
	if status != http.StatusOK {
		t.Fatalf("roll action: %d %v", status, result)
	}
	if result["rollExpression"] != "d10 + rank" {
		t.Errorf("unexpected roll expression %v", result["rollExpression"])
	}
	v := int(result["value"].(float64))
	if v < 4 || v > 13 {
		t.Errorf("d10 + 3 rolled %d", v)
	}

	status, _ = doJSON(t, "POST", apiURL("sheets/"+id+"/subsheets/wolf/actions/firebolt:roll"), nil)
	if status != http.StatusNotFound {
		t.Errorf("expected 404 for missing action, got %d", status)
	}
}
