// Package luarule renders custom rspamd regexp rules as lua files. Every rendered rule is executed
// in a sandboxed lua state before it is returned, so a broken rule never reaches the rspamd config dir.
package luarule

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	lua "github.com/yuin/gopher-lua"
)

var symbolRe = regexp.MustCompile(`^[A-Z0-9_]+$`)

// Rule is a custom regexp rule
type Rule struct {
	Symbol  string
	Pattern string
	Score   float64
}

// Parse makes a rule from "SYMBOL|pattern|score" string
func Parse(inp string) (Rule, error) {
	parts := strings.Split(inp, "|")
	if len(parts) != 3 {
		return Rule{}, fmt.Errorf("expected symbol|pattern|score, got %q", inp)
	}
	score, err := strconv.ParseFloat(strings.TrimSpace(parts[2]), 64)
	if err != nil {
		return Rule{}, fmt.Errorf("invalid score %q: %w", parts[2], err)
	}
	r := Rule{Symbol: strings.TrimSpace(parts[0]), Pattern: strings.TrimSpace(parts[1]), Score: score}
	if err := r.validate(); err != nil {
		return Rule{}, err
	}
	return r, nil
}

// FileName returns the name of the rule file
func (r Rule) FileName() string {
	return "telegram_regex_" + strings.ToLower(r.Symbol) + ".lua"
}

// Render returns the lua source of the rule. The source is checked by loading it into a lua state
// with a stub rspamd config table.
func (r Rule) Render() (string, error) {
	if err := r.validate(); err != nil {
		return "", err
	}
	src := fmt.Sprintf(`config['regexp']['%s'] = {
  re = '%s',
  score = %s,
  description = 'telegram custom rule %s',
  group = 'telegram',
  condition = function(task)
    if task:get_header('Subject') then
      return true
    end
    return false
  end,
}
`, r.Symbol, luaEscape("/"+r.Pattern+"/i{mime}"), strconv.FormatFloat(r.Score, 'f', -1, 64), r.Symbol)

	if err := check(src, r); err != nil {
		return "", fmt.Errorf("generated rule is invalid: %w", err)
	}
	return src, nil
}

// Write renders the rule and writes it into dir, returns the full path of the written file
func (r Rule) Write(dir string) (string, error) {
	src, err := r.Render()
	if err != nil {
		return "", err
	}
	st, err := os.Stat(dir)
	if err != nil {
		return "", fmt.Errorf("rules dir %s: %w", dir, err)
	}
	if !st.IsDir() {
		return "", fmt.Errorf("rules dir %s is not a directory", dir)
	}
	path := filepath.Join(dir, r.FileName())
	if err := os.WriteFile(path, []byte(src), 0o644); err != nil { //nolint:gosec // rspamd reads the file
		return "", fmt.Errorf("failed to write rule %s: %w", path, err)
	}
	return path, nil
}

func (r Rule) validate() error {
	if !symbolRe.MatchString(r.Symbol) {
		return fmt.Errorf("invalid symbol %q, only A-Z, 0-9 and _ allowed", r.Symbol)
	}
	if r.Pattern == "" {
		return fmt.Errorf("empty pattern")
	}
	if _, err := regexp.Compile(r.Pattern); err != nil {
		return fmt.Errorf("invalid pattern %q: %w", r.Pattern, err)
	}
	return nil
}

// check executes the rule in a fresh lua state and verifies it registered itself
func check(src string, r Rule) error {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	defer L.Close()

	cfg := L.NewTable()
	cfg.RawSetString("regexp", L.NewTable())
	L.SetGlobal("config", cfg)

	if err := L.DoString(src); err != nil {
		return err
	}

	rule, ok := cfg.RawGetString("regexp").(*lua.LTable).RawGetString(r.Symbol).(*lua.LTable)
	if !ok {
		return fmt.Errorf("symbol %s is not registered", r.Symbol)
	}
	if rule.RawGetString("re").Type() != lua.LTString {
		return fmt.Errorf("symbol %s has no re", r.Symbol)
	}
	score, ok := rule.RawGetString("score").(lua.LNumber)
	if !ok || float64(score) != r.Score {
		return fmt.Errorf("symbol %s has wrong score %v", r.Symbol, rule.RawGetString("score"))
	}
	if rule.RawGetString("condition").Type() != lua.LTFunction {
		return fmt.Errorf("symbol %s has no condition", r.Symbol)
	}
	return nil
}

func luaEscape(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `'`, `\'`)
	s = strings.ReplaceAll(s, "\n", `\n`)
	return s
}
