package main

import "testing"

func TestRootCommandRejectsPositionalArgs(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetArgs([]string{"extra-arg"})
	if err := cmd.Args(cmd, []string{"extra-arg"}); err == nil {
		t.Fatal("expected NoArgs validation to reject a positional argument")
	}
}

func TestRootCommandHasConfigFlag(t *testing.T) {
	cmd := newRootCmd()
	if cmd.Flags().Lookup("config") == nil {
		t.Fatal("expected a --config flag")
	}
}
