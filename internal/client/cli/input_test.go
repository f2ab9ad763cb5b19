package cli

import (
	"bufio"
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetSimpleText(t *testing.T) {
	var w bytes.Buffer
	r := bufio.NewReader(strings.NewReader("  hello \nnext\n"))

	got, err := GetSimpleText(r, "Name", &w)
	require.NoError(t, err)
	assert.Equal(t, "hello", got)
	assert.Equal(t, "Name\n> ", w.String())

	got, err = GetSimpleText(r, "Again", &w)
	require.NoError(t, err)
	assert.Equal(t, "next", got)
}

func TestGetSimpleText_PartialLineAtEOF(t *testing.T) {
	var w bytes.Buffer
	got, err := GetSimpleText(bufio.NewReader(strings.NewReader("tail")), "p", &w)
	require.NoError(t, err)
	assert.Equal(t, "tail", got)

	_, err = GetSimpleText(bufio.NewReader(strings.NewReader("")), "p", &w)
	assert.Error(t, err)
}

func TestGetMultiline(t *testing.T) {
	var w bytes.Buffer
	r := bufio.NewReader(strings.NewReader("first line\nsecond line\n\nafter\n"))

	got, err := GetMultiline(r, "Describe", &w)
	require.NoError(t, err)
	assert.Equal(t, "first line\nsecond line", got)

	rest, _ := r.ReadString('\n')
	assert.Equal(t, "after\n", rest)
}

func TestGetSecret(t *testing.T) {
	old := readPassword
	t.Cleanup(func() { readPassword = old })

	readPassword = func(fd int) ([]byte, error) { return []byte(" tok.en.sig \n"), nil }
	var w bytes.Buffer
	got, err := GetSecret("Token", &w)
	require.NoError(t, err)
	assert.Equal(t, "tok.en.sig", got)
	assert.Equal(t, "Token: \n", w.String())

	readPassword = func(fd int) ([]byte, error) { return nil, errors.New("no tty") }
	_, err = GetSecret("Token", &w)
	assert.EqualError(t, err, "no tty")
}
