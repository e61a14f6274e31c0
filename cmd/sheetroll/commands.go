package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lemonberrylabs/sheetroll/pkg/expr"
	"github.com/lemonberrylabs/sheetroll/pkg/logging"
	"github.com/lemonberrylabs/sheetroll/pkg/parser"
	"github.com/lemonberrylabs/sheetroll/pkg/random"
	"github.com/lemonberrylabs/sheetroll/pkg/repl"
	"github.com/lemonberrylabs/sheetroll/pkg/roll"
	"github.com/lemonberrylabs/sheetroll/pkg/runtime"
	"github.com/lemonberrylabs/sheetroll/pkg/sheet"
	"github.com/lemonberrylabs/sheetroll/pkg/stdlib"
)

var rollCmd = &cobra.Command{
	Use:   "roll EXPRESSION",
	Short: "Roll a dice expression",
	Example: `  sheetroll roll "4d6r<2"
  sheetroll roll "Attack: 1d20 + strMod" --sheet hero.yaml
  sheetroll roll "2d6 + bonus" --var bonus=3 --seed 42`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRoll,
}

var resolveCmd = &cobra.Command{
	Use:   "resolve FILE",
	Short: "Resolve a sheet and print its context as JSON",
	Args:  cobra.ExactArgs(1),
	RunE:  runResolve,
}

var replCmd = &cobra.Command{
	Use:   "repl",
	Short: "Start an interactive roller",
	Args:  cobra.NoArgs,
	RunE:  runREPL,
}

func init() {
	rollCmd.Flags().String("sheet", "", "Sheet whose context the expression is rolled against")
	rollCmd.Flags().String("active", "", "Active sub-sheet (default: the sheet's own)")
	rollCmd.Flags().StringArray("var", nil, "Variable as NAME=VALUE; may be repeated and overrides the sheet")
	rollCmd.Flags().Int64("seed", 0, "Seed for reproducible rolls")
	rollCmd.Flags().Bool("html", false, "Print the breakdown as HTML")
	rollCmd.Flags().Bool("json", false, "Print the full result as JSON")
	rollCmd.Flags().String("log-level", "warn", "Log level")

	resolveCmd.Flags().String("active", "", "Active sub-sheet (default: the sheet's own)")
	resolveCmd.Flags().String("log-level", "warn", "Log level")

	replCmd.Flags().String("sheet", "", "Sheet to load at startup")
}

func loadSheetFile(path string) (*sheet.Sheet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return parser.Parse(data)
}

func parseVars(vars []string) (expr.Context, error) {
	ctx := expr.Context{}
	for _, v := range vars {
		name, value, ok := strings.Cut(v, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid --var %q, expected NAME=VALUE", v)
		}
		n, err := strconv.Atoi(value)
		if err != nil {
			return nil, fmt.Errorf("invalid --var %q: value must be an integer", v)
		}
		ctx[name] = n
	}
	return ctx, nil
}

func runRoll(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()
	level, _ := flags.GetString("log-level")
	log := logging.New(level, true)

	var requested *int64
	if flags.Changed("seed") {
		seed, _ := flags.GetInt64("seed")
		requested = &seed
	}
	seed, _, err := random.ResolveSeed(requested, nil)
	if err != nil {
		return err
	}
	engine := runtime.NewEngine(stdlib.NewRegistry(),
		runtime.WithSource(expr.NewSource(seed)),
		runtime.WithLogger(log))

	ctx := expr.Context{}
	if path, _ := flags.GetString("sheet"); path != "" {
		sh, err := loadSheetFile(path)
		if err != nil {
			return err
		}
		active, _ := flags.GetString("active")
		if active == "" {
			active = sh.ActiveSubSheetID
		}
		ctx = engine.BuildContextFor(sh, active).Context
	}
	rawVars, _ := flags.GetStringArray("var")
	vars, err := parseVars(rawVars)
	if err != nil {
		return err
	}
	for k, v := range vars {
		ctx[k] = v
	}

	out := engine.Roll(strings.Join(args, " "), ctx, roll.FormatConfig{})
	if !out.OK() {
		return out.Err()
	}
	res := out.Result

	w := cmd.OutOrStdout()
	if asJSON, _ := flags.GetBool("json"); asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(struct {
			*roll.Result
			Seed int64 `json:"seed"`
		}{res, seed})
	}

	breakdown := res.FormattedString
	if asHTML, _ := flags.GetBool("html"); asHTML {
		if breakdown, err = roll.RenderHTML(res.FormattedString); err != nil {
			return err
		}
	}
	if res.Title != "" {
		fmt.Fprintf(w, "%s: ", res.Title)
	}
	fmt.Fprintf(w, "%d\n%s\n", res.Value, breakdown)
	return nil
}

func runResolve(cmd *cobra.Command, args []string) error {
	level, _ := cmd.Flags().GetString("log-level")
	engine := runtime.NewEngine(stdlib.NewRegistry(), runtime.WithLogger(logging.New(level, true)))

	sh, err := loadSheetFile(args[0])
	if err != nil {
		return err
	}
	active, _ := cmd.Flags().GetString("active")
	if active == "" {
		active = sh.ActiveSubSheetID
	} else if sh.SubSheet(active) == nil {
		return fmt.Errorf("sub-sheet '%s' not found", active)
	}

	res := engine.BuildContextFor(sh, active)
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(res); err != nil {
		return err
	}
	return res.Err()
}

func runREPL(cmd *cobra.Command, args []string) error {
	funcs := stdlib.NewRegistry()
	session := repl.NewSession(runtime.NewEngine(funcs), cmd.OutOrStdout(), funcs.Names())
	if path, _ := cmd.Flags().GetString("sheet"); path != "" {
		if err := session.Load(path); err != nil {
			return err
		}
	}
	return repl.Start(session, version)
}
