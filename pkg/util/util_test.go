package util

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xplshn/ccfront/pkg/config"
	"github.com/xplshn/ccfront/pkg/token"
	"tlog.app/go/errors"
)

func at(src *token.Source, offset, n int) token.Token {
	return token.Token{Type: token.Ident, Src: src, Offset: offset, Len: n}
}

func TestRecover(t *testing.T) {
	src := token.NewSource("r.c", []byte("int x;\nfoo bar\n"))

	run := func() (err error) {
		defer Recover(&err)
		Fatal(ScopeError, at(src, 11, 3), "undefined variable: %s", "bar")
		return nil
	}

	err := run()
	require.Error(t, err)
	assert.Equal(t, "r.c:2:5: scope error: undefined variable: bar", err.Error())

	e, ok := AsError(errors.Wrap(err, "analyze"))
	require.True(t, ok)
	assert.Equal(t, ScopeError, e.Kind)
}

func TestRecoverRepanics(t *testing.T) {
	assert.PanicsWithValue(t, "boom", func() {
		var err error
		defer Recover(&err)
		panic("boom")
	})
}

func TestInternalErrorRecordsCaller(t *testing.T) {
	e := Errorf(InternalError, token.Token{}, "bad state")
	assert.NotZero(t, e.From)
	assert.Contains(t, e.Error(), "internal error: bad state (raised at ")

	e = Errorf(TypeError, token.Token{}, "bad type")
	assert.Zero(t, e.From)
	assert.Equal(t, "type error: bad type", e.Error())
}

func TestPrint(t *testing.T) {
	src := token.NewSource("p.c", []byte("a = bogus;\n"))
	var buf bytes.Buffer
	Print(&buf, Errorf(TypeError, at(src, 4, 5), "nope"))

	assert.Equal(t, "p.c:1:5: type error: nope\n  a = bogus;\n      \033[32m^~~~~\033[0m\n", buf.String())

	buf.Reset()
	Print(&buf, errors.New("plain"))
	assert.Contains(t, buf.String(), "plain")
}

func TestWarn(t *testing.T) {
	cfg := config.NewConfig()
	var buf bytes.Buffer
	cfg.Stderr = &buf
	src := token.NewSource("w.c", []byte("x\n"))

	Warn(cfg, config.WarnShadow, at(src, 0, 1), "hidden")
	assert.Empty(t, buf.String())

	cfg.SetWarning(config.WarnShadow, true)
	Warn(cfg, config.WarnShadow, at(src, 0, 1), "shadows '%s'", "x")
	assert.Contains(t, buf.String(), "w.c:1:1: ")
	assert.Contains(t, buf.String(), "shadows 'x' [-Wshadow]")
}

func TestAlignUp(t *testing.T) {
	assert.Equal(t, 0, AlignUp(0, 8))
	assert.Equal(t, 8, AlignUp(1, 8))
	assert.Equal(t, 16, AlignUp(16, 8))
	assert.Equal(t, 5, AlignUp(5, 1))
	assert.Equal(t, 5, AlignUp(5, 0))
}
