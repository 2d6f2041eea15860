package util

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/xplshn/ccfront/pkg/config"
	"github.com/xplshn/ccfront/pkg/token"
	"tlog.app/go/loc"
)

type Kind int

const (
	TokenError Kind = iota
	DirectiveError
	ScopeError
	TypeError
	InternalError
)

var kindNames = [...]string{
	TokenError:     "token error",
	DirectiveError: "directive error",
	ScopeError:     "scope error",
	TypeError:      "type error",
	InternalError:  "internal error",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Error is a fatal diagnostic. The first one raised aborts the pass.
type Error struct {
	Kind Kind
	Tok  token.Token
	Msg  string
	From loc.PC // Go call site, recorded for internal errors only
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Tok.Src != nil {
		pos := e.Tok.Position()
		fmt.Fprintf(&b, "%s:%d:%d: ", pos.Filename, pos.Line, pos.Column)
	}
	fmt.Fprintf(&b, "%s: %s", e.Kind, e.Msg)
	if e.Kind == InternalError && e.From != 0 {
		fmt.Fprintf(&b, " (raised at %v)", e.From)
	}
	return b.String()
}

// Errorf builds an *Error at tok.
func Errorf(kind Kind, tok token.Token, format string, args ...interface{}) *Error {
	e := &Error{Kind: kind, Tok: tok, Msg: fmt.Sprintf(format, args...)}
	if kind == InternalError {
		e.From = loc.Caller(1)
	}
	return e
}

// Fatal aborts the current pass with a diagnostic. It must only be called
// below a Recover.
func Fatal(kind Kind, tok token.Token, format string, args ...interface{}) {
	e := &Error{Kind: kind, Tok: tok, Msg: fmt.Sprintf(format, args...)}
	if kind == InternalError {
		e.From = loc.Caller(1)
	}
	panic(e)
}

// Recover turns an abort raised by Fatal into a returned error. Any other
// panic is re-raised.
//
//	defer util.Recover(&err)
func Recover(errp *error) {
	r := recover()
	if r == nil {
		return
	}
	if e, ok := r.(*Error); ok {
		*errp = e
		return
	}
	panic(r)
}

// AsError extracts the diagnostic from a possibly wrapped error.
func AsError(err error) (*Error, bool) {
	var e *Error
	ok := errors.As(err, &e)
	return e, ok
}

// Print writes err followed by the offending source line and a caret.
func Print(w io.Writer, err error) {
	e, ok := AsError(err)
	if !ok {
		fmt.Fprintf(w, "\033[31merror:\033[0m %v\n", err)
		return
	}
	fmt.Fprintln(w, err.Error())
	printErrorLine(w, e.Tok)
}

func printErrorLine(w io.Writer, tok token.Token) {
	if tok.Src == nil {
		return
	}
	line := tok.Src.LineText(tok.Offset)
	col := tok.Position().Column

	fmt.Fprintf(w, "  %s\n", line)
	fmt.Fprintf(w, "  %s\033[32m^", strings.Repeat(" ", col-1))
	if tok.Len > 1 {
		fmt.Fprintf(w, "%s", strings.Repeat("~", tok.Len-1))
	}
	fmt.Fprintln(w, "\033[0m")
}

// Warn prints a warning if the corresponding warning is enabled
func Warn(cfg *config.Config, wt config.Warning, tok token.Token, format string, args ...interface{}) {
	if !cfg.IsWarningEnabled(wt) || cfg.Stderr == nil {
		return
	}
	pos := tok.Position()
	fmt.Fprintf(cfg.Stderr, "%s:%d:%d: \033[33mwarning:\033[0m ", pos.Filename, pos.Line, pos.Column)
	fmt.Fprintf(cfg.Stderr, format, args...)
	fmt.Fprintf(cfg.Stderr, " [-W%s]\n", cfg.Warnings[wt].Name)
	printErrorLine(cfg.Stderr, tok)
}

// AlignUp rounds n up to the next multiple of align.
func AlignUp(n, align int) int {
	if align <= 1 {
		return n
	}
	return (n + align - 1) / align * align
}
