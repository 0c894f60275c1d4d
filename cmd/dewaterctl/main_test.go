package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"

	_ "github.com/redkey-web/DewaterQuote-sub003/testing"
)

func testApp() *cli.App {
	a := newApp()
	a.ExitErrHandler = func(*cli.Context, error) {}
	return a
}

func TestCommandTree(t *testing.T) {
	a := newApp()
	names := map[string][]string{}
	for _, cmd := range a.Commands {
		for _, sub := range cmd.Subcommands {
			names[cmd.Name] = append(names[cmd.Name], sub.Name)
		}
	}
	assert.Equal(t, []string{"up", "down", "version"}, names["migrate"])
	assert.Equal(t, []string{"create", "reset-password"}, names["admin"])
	assert.Equal(t, []string{"export", "send"}, names["quotes"])
	assert.Equal(t, []string{"reconcile", "trigger", "stats"}, names["jobs"])
}

func TestArgumentValidationRunsBeforeConnecting(t *testing.T) {
	err := testApp().Run([]string{"dewaterctl", "migrate", "down", "--steps", "0"})
	require.Error(t, err)
	var exit cli.ExitCoder
	require.ErrorAs(t, err, &exit)
	assert.Equal(t, 2, exit.ExitCode())

	err = testApp().Run([]string{"dewaterctl", "quotes", "send", "--id", "4", "--shipping", "-3"})
	require.ErrorAs(t, err, &exit)
	assert.Contains(t, err.Error(), "invalid --shipping")
}

func TestRequiredFlags(t *testing.T) {
	err := testApp().Run([]string{"dewaterctl", "quotes", "send"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "id")
}
