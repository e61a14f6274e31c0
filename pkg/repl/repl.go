// Package repl implements an interactive dice roller that evaluates
// expressions against a loaded character sheet.
package repl

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/peterh/liner"

	"github.com/lemonberrylabs/sheetroll/pkg/expr"
	"github.com/lemonberrylabs/sheetroll/pkg/parser"
	"github.com/lemonberrylabs/sheetroll/pkg/roll"
	"github.com/lemonberrylabs/sheetroll/pkg/runtime"
	"github.com/lemonberrylabs/sheetroll/pkg/sheet"
)

const Prompt = "roll> "

var commands = []string{":help", ":load", ":active", ":set", ":unset", ":vars", ":action", ":quit"}

const helpText = `Commands:
  <expression>          roll an expression, e.g. "Attack: 1d20 + strMod"
  :load FILE            load a sheet and resolve its properties
  :active SUBSHEET      switch the active sub-sheet
  :set NAME VALUE       set a variable, overriding the sheet
  :unset NAME           remove a variable set with :set
  :vars                 list every variable in scope
  :action [SUB/]ACTION  roll an action with its qualities applied
  :quit                 exit
`

// Session holds the state of one REPL: the loaded sheet, its resolved
// context and any variables set by hand.
type Session struct {
	engine *runtime.Engine
	funcs  []string
	out    io.Writer
	format roll.FormatConfig

	sheet     *sheet.Sheet
	active    string
	resolved  expr.Context
	overrides expr.Context
}

// NewSession creates a session that rolls with engine and writes to out.
// funcs are offered for tab completion.
func NewSession(engine *runtime.Engine, out io.Writer, funcs []string) *Session {
	return &Session{
		engine:    engine,
		funcs:     funcs,
		out:       out,
		resolved:  expr.Context{},
		overrides: expr.Context{},
	}
}

// Context returns the variables expressions are evaluated against.
func (s *Session) Context() expr.Context {
	ctx := make(expr.Context, len(s.resolved)+len(s.overrides))
	for k, v := range s.resolved {
		ctx[k] = v
	}
	for k, v := range s.overrides {
		ctx[k] = v
	}
	return ctx
}

// Load parses the sheet at path and resolves it.
func (s *Session) Load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	sh, err := parser.Parse(data)
	if err != nil {
		return err
	}
	s.sheet = sh
	s.active = sh.ActiveSubSheetID
	s.resolve()
	return nil
}

func (s *Session) resolve() {
	if s.sheet == nil {
		return
	}
	res := s.engine.BuildContextFor(s.sheet, s.active)
	s.resolved = res.Context
	name := s.sheet.Name
	if name == "" {
		name = s.sheet.ID
	}
	fmt.Fprintf(s.out, "Loaded %s: %d variables in %d pass(es)\n", name, len(res.Context), res.Passes)
	if len(res.Unresolved) > 0 {
		fmt.Fprintf(s.out, "Could not resolve:")
		for _, p := range res.Unresolved {
			fmt.Fprintf(s.out, " %s", p.Key())
		}
		fmt.Fprintln(s.out)
	}
}

// Exec runs one line of input and reports whether the session should end.
func (s *Session) Exec(line string) bool {
	line = strings.TrimSpace(line)
	switch {
	case line == "":
		return false
	case line == "exit" || line == "quit":
		return true
	case strings.HasPrefix(line, ":"):
		return s.command(line)
	}

	s.printOutcome(s.engine.Roll(line, s.Context(), s.format))
	return false
}

func (s *Session) command(line string) bool {
	fields := strings.Fields(line)
	cmd, args := fields[0], fields[1:]

	switch cmd {
	case ":quit", ":q", ":exit":
		return true
	case ":help", ":h":
		io.WriteString(s.out, helpText)
	case ":load":
		if len(args) != 1 {
			fmt.Fprintln(s.out, "usage: :load FILE")
			return false
		}
		if err := s.Load(args[0]); err != nil {
			fmt.Fprintf(s.out, "error: %v\n", err)
		}
	case ":active":
		if len(args) != 1 {
			fmt.Fprintln(s.out, "usage: :active SUBSHEET")
			return false
		}
		if s.sheet == nil {
			fmt.Fprintln(s.out, "error: no sheet loaded")
			return false
		}
		if s.sheet.SubSheet(args[0]) == nil {
			fmt.Fprintf(s.out, "error: sub-sheet '%s' not found\n", args[0])
			return false
		}
		s.active = args[0]
		s.resolve()
	case ":set":
		if len(args) != 2 {
			fmt.Fprintln(s.out, "usage: :set NAME VALUE")
			return false
		}
		v, err := strconv.Atoi(args[1])
		if err != nil {
			fmt.Fprintf(s.out, "error: '%s' is not an integer\n", args[1])
			return false
		}
		s.overrides[args[0]] = v
		fmt.Fprintf(s.out, "%s = %d\n", args[0], v)
	case ":unset":
		for _, name := range args {
			delete(s.overrides, name)
		}
	case ":vars":
		s.printVars()
	case ":action":
		if len(args) != 1 {
			fmt.Fprintln(s.out, "usage: :action [SUBSHEET/]ACTION")
			return false
		}
		s.rollAction(args[0])
	default:
		fmt.Fprintf(s.out, "unknown command %s (try :help)\n", cmd)
	}
	return false
}

func (s *Session) rollAction(ref string) {
	if s.sheet == nil {
		fmt.Fprintln(s.out, "error: no sheet loaded")
		return
	}
	subID, actionID := s.active, ref
	if i := strings.Index(ref, "/"); i >= 0 {
		subID, actionID = ref[:i], ref[i+1:]
	}
	ar, err := s.engine.RollAction(s.sheet, subID, actionID, s.format)
	if err != nil {
		fmt.Fprintf(s.out, "error: %v\n", err)
		return
	}
	fmt.Fprintf(s.out, "%s\n", ar.Expression)
	s.printOutcome(ar.Outcome)
	for _, m := range ar.Modifications {
		fmt.Fprintf(s.out, "  %s\n", m)
	}
}

func (s *Session) printOutcome(out roll.Outcome) {
	if !out.OK() {
		for _, e := range out.Errors {
			fmt.Fprintf(s.out, "error: %s\n", e)
		}
		return
	}
	r := out.Result
	if r.Title != "" {
		fmt.Fprintf(s.out, "%s: ", r.Title)
	}
	fmt.Fprintf(s.out, "%d  %s", r.Value, r.FormattedString)
	if r.Successes != nil {
		fmt.Fprintf(s.out, "  (%d successes)", *r.Successes)
	}
	fmt.Fprintln(s.out)
}

func (s *Session) printVars() {
	ctx := s.Context()
	if len(ctx) == 0 {
		fmt.Fprintln(s.out, "no variables")
		return
	}
	names := make([]string, 0, len(ctx))
	for k := range ctx {
		names = append(names, k)
	}
	sort.Strings(names)
	for _, k := range names {
		marker := ""
		if _, ok := s.overrides[k]; ok {
			marker = " (set)"
		}
		fmt.Fprintf(s.out, "%s = %d%s\n", k, ctx[k], marker)
	}
}

// Complete returns completions for the last word of line.
func (s *Session) Complete(line string) []string {
	start := strings.LastIndexAny(line, " +-*/()<>=,") + 1
	prefix, word := line[:start], line[start:]
	if word == "" {
		return nil
	}

	var candidates []string
	if start == 0 && strings.HasPrefix(word, ":") {
		candidates = commands
	} else {
		for k := range s.Context() {
			candidates = append(candidates, k)
		}
		candidates = append(candidates, s.funcs...)
	}

	var out []string
	for _, c := range candidates {
		if strings.HasPrefix(c, word) {
			out = append(out, prefix+c)
		}
	}
	sort.Strings(out)
	return out
}

// Start runs the interactive loop on the terminal until the user quits.
// It returns an error if the terminal can no longer be read.
func Start(s *Session, version string) error {
	line := liner.NewLiner()
	defer line.Close()

	line.SetCtrlCAborts(true)
	line.SetCompleter(s.Complete)

	historyFile := filepath.Join(os.TempDir(), ".sheetroll_history")
	if f, err := os.Open(historyFile); err == nil {
		line.ReadHistory(f)
		f.Close()
	}
	defer func() {
		if f, err := os.Create(historyFile); err == nil {
			line.WriteHistory(f)
			f.Close()
		}
	}()

	fmt.Fprintf(s.out, "sheetroll %s\n", version)
	fmt.Fprintln(s.out, "Type ':help' for commands, Ctrl+D to quit")
	return s.run(line)
}

// lineReader is the part of *liner.State the loop uses.
type lineReader interface {
	Prompt(prompt string) (string, error)
	AppendHistory(item string)
}

func (s *Session) run(in lineReader) error {
	for {
		input, err := in.Prompt(Prompt)
		if errors.Is(err, liner.ErrPromptAborted) {
			fmt.Fprintln(s.out, "^C")
			continue
		}
		if errors.Is(err, io.EOF) {
			fmt.Fprintln(s.out)
			return nil
		}
		if err != nil {
			return fmt.Errorf("read input: %w", err)
		}
		if strings.TrimSpace(input) != "" {
			in.AppendHistory(input)
		}
		if s.Exec(input) {
			return nil
		}
	}
}
