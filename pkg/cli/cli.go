package cli

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/term"
	"tlog.app/go/errors"
)

type Value interface {
	String() string
	Set(string) error
}

type stringValue struct{ p *string }

func (v *stringValue) Set(s string) error { *v.p = s; return nil }
func (v *stringValue) String() string     { return *v.p }

type boolValue struct{ p *bool }

func (v *boolValue) Set(s string) error {
	if s == "" {
		*v.p = true
		return nil
	}
	val, err := strconv.ParseBool(s)
	if err != nil {
		return errors.New("invalid boolean value '%s'", s)
	}
	*v.p = val
	return nil
}
func (v *boolValue) String() string { return strconv.FormatBool(*v.p) }

type listValue struct{ p *[]string }

func (v *listValue) Set(s string) error { *v.p = append(*v.p, s); return nil }
func (v *listValue) String() string     { return strings.Join(*v.p, ", ") }

type Flag struct {
	Name      string
	Shorthand string
	Usage     string
	Value     Value
	DefValue  string
	Arg       string // placeholder shown in help, empty for booleans
}

func (f *Flag) isBool() bool {
	_, ok := f.Value.(*boolValue)
	return ok
}

// FlagSet parses GNU style options: --name, --name=value, -s value, -svalue,
// and prefix flags such as -Wshadow where the prefix is glued to its value.
type FlagSet struct {
	name       string
	flags      map[string]*Flag
	shorthands map[string]*Flag
	prefixes   map[string]*Flag
	args       []string
}

func NewFlagSet(name string) *FlagSet {
	return &FlagSet{
		name:       name,
		flags:      make(map[string]*Flag),
		shorthands: make(map[string]*Flag),
		prefixes:   make(map[string]*Flag),
	}
}

func (f *FlagSet) Args() []string { return f.args }

func (f *FlagSet) Lookup(name string) *Flag { return f.flags[name] }

func (f *FlagSet) String(p *string, name, shorthand, value, usage, arg string) {
	*p = value
	f.Var(&stringValue{p}, name, shorthand, usage, value, arg)
}

func (f *FlagSet) Bool(p *bool, name, shorthand string, value bool, usage string) {
	*p = value
	f.Var(&boolValue{p}, name, shorthand, usage, strconv.FormatBool(value), "")
}

func (f *FlagSet) List(p *[]string, name, shorthand string, usage, arg string) {
	*p = nil
	f.Var(&listValue{p}, name, shorthand, usage, "", arg)
}

// Prefix collects every -<prefix><value> argument into p.
func (f *FlagSet) Prefix(p *[]string, prefix, usage, arg string) {
	*p = nil
	f.Var(&listValue{p}, prefix, "", usage, "", arg)
	f.prefixes[prefix] = f.flags[prefix]
}

func (f *FlagSet) Var(value Value, name, shorthand, usage, defValue, arg string) {
	if name == "" {
		panic("flag name cannot be empty")
	}
	if _, ok := f.flags[name]; ok {
		panic(fmt.Sprintf("flag redefined: %s", name))
	}
	flag := &Flag{Name: name, Shorthand: shorthand, Usage: usage, Value: value, DefValue: defValue, Arg: arg}
	f.flags[name] = flag
	if shorthand == "" {
		return
	}
	if _, ok := f.shorthands[shorthand]; ok {
		panic(fmt.Sprintf("shorthand flag redefined: %s", shorthand))
	}
	f.shorthands[shorthand] = flag
}

func (f *FlagSet) Parse(arguments []string) error {
	f.args = nil
	for i := 0; i < len(arguments); i++ {
		arg := arguments[i]
		switch {
		case arg == "--":
			f.args = append(f.args, arguments[i+1:]...)
			return nil
		case len(arg) < 2 || arg[0] != '-':
			f.args = append(f.args, arg)
		case strings.HasPrefix(arg, "--"):
			if err := f.parseLong(arg[2:], arguments, &i); err != nil {
				return err
			}
		default:
			if err := f.parseShort(arg, arguments, &i); err != nil {
				return err
			}
		}
	}
	return nil
}

func (f *FlagSet) parseLong(arg string, arguments []string, i *int) error {
	name, value, hasValue := strings.Cut(arg, "=")
	if name == "" {
		return errors.New("empty flag name")
	}
	flag, ok := f.flags[name]
	if !ok {
		return errors.New("unknown flag: --%s", name)
	}
	return f.set(flag, "--"+name, value, hasValue, arguments, i)
}

func (f *FlagSet) parseShort(arg string, arguments []string, i *int) error {
	for prefix, flag := range f.prefixes {
		if strings.HasPrefix(arg[1:], prefix) && len(arg) > len(prefix)+1 {
			return flag.Value.Set(arg[len(prefix)+1:])
		}
	}

	shorthand := arg[1:2]
	flag, ok := f.shorthands[shorthand]
	if !ok {
		return errors.New("unknown flag: -%s", shorthand)
	}
	value := arg[2:]
	return f.set(flag, "-"+shorthand, value, value != "", arguments, i)
}

func (f *FlagSet) set(flag *Flag, spelled, value string, hasValue bool, arguments []string, i *int) error {
	if !hasValue && !flag.isBool() {
		if *i+1 >= len(arguments) {
			return errors.New("flag needs an argument: %s", spelled)
		}
		*i++
		value = arguments[*i]
	}
	if err := flag.Value.Set(value); err != nil {
		return errors.Wrap(err, "%s", spelled)
	}
	return nil
}

type App struct {
	Name        string
	Synopsis    string
	Description string
	FlagSet     *FlagSet
	Action      func(args []string) error

	Stdout, Stderr io.Writer
}

func NewApp(name string) *App {
	return &App{
		Name:    name,
		FlagSet: NewFlagSet(name),
		Stdout:  os.Stdout,
		Stderr:  os.Stderr,
	}
}

func (a *App) Run(arguments []string) error {
	help := false
	a.FlagSet.Bool(&help, "help", "h", false, "Display this information.")

	if err := a.FlagSet.Parse(arguments); err != nil {
		fmt.Fprintln(a.Stderr, err)
		fmt.Fprintf(a.Stderr, "Run '%s --help' for all available options.\n", a.Name)
		return err
	}
	if help {
		a.WriteHelp(a.Stdout, terminalWidth())
		return nil
	}
	if a.Action != nil {
		return a.Action(a.FlagSet.Args())
	}
	return nil
}

// WriteHelp renders the help page wrapped to width columns.
func (a *App) WriteHelp(w io.Writer, width int) {
	const indent = "    "
	var sb strings.Builder

	fmt.Fprintf(&sb, "Usage: %s %s\n", a.Name, a.Synopsis)
	if a.Description != "" {
		sb.WriteString("\n")
		for _, line := range wrapText(a.Description, width-len(indent)) {
			fmt.Fprintf(&sb, "%s%s\n", indent, line)
		}
	}

	flags := make([]*Flag, 0, len(a.FlagSet.flags))
	left := 0
	for _, flag := range a.FlagSet.flags {
		flags = append(flags, flag)
		left = max(left, len(a.flagString(flag)))
	}
	sort.Slice(flags, func(i, j int) bool { return flags[i].Name < flags[j].Name })

	sb.WriteString("\nOptions\n")
	usageWidth := max(width-2*len(indent)-left-1, 10)
	for _, flag := range flags {
		lines := wrapText(flag.Usage, usageWidth)
		if flag.DefValue != "" && !flag.isBool() {
			lines = append(lines, fmt.Sprintf("(default %s)", flag.DefValue))
		}
		if len(lines) == 0 {
			lines = []string{""}
		}
		fmt.Fprintf(&sb, "%s%-*s %s\n", indent, left, a.flagString(flag), lines[0])
		for _, l := range lines[1:] {
			fmt.Fprintf(&sb, "%s%s %s\n", indent, strings.Repeat(" ", left), l)
		}
	}
	fmt.Fprint(w, sb.String())
}

func (a *App) flagString(flag *Flag) string {
	if _, ok := a.FlagSet.prefixes[flag.Name]; ok {
		return fmt.Sprintf("-%s<%s>", flag.Name, flag.Arg)
	}

	var sb strings.Builder
	if flag.Shorthand != "" {
		fmt.Fprintf(&sb, "-%s, ", flag.Shorthand)
	}
	fmt.Fprintf(&sb, "--%s", flag.Name)
	if !flag.isBool() && flag.Arg != "" {
		fmt.Fprintf(&sb, " <%s>", flag.Arg)
	}
	return sb.String()
}

func terminalWidth() int {
	fd := int(os.Stdout.Fd())
	if !term.IsTerminal(fd) {
		return 80
	}
	width, _, err := term.GetSize(fd)
	if err != nil {
		return 80
	}
	return max(width, 20)
}

func wrapText(text string, maxWidth int) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}
	if maxWidth <= 0 {
		return []string{strings.Join(words, " ")}
	}

	var lines []string
	var line strings.Builder
	for _, word := range words {
		if line.Len() > 0 && line.Len()+1+len(word) > maxWidth {
			lines = append(lines, line.String())
			line.Reset()
		}
		if line.Len() > 0 {
			line.WriteByte(' ')
		}
		line.WriteString(word)
	}
	return append(lines, line.String())
}
