package main

import (
	"context"
	"os"
	"os/exec"
	"testing"

	"rsc.io/script"
	"rsc.io/script/scripttest"
)

// TestScripts drives the built tbridge binary through the scripts
// under testdata/script: each .txt file is a sequence of shell-like
// commands and expected output, checked against a real subprocess
// rather than calling into the cobra commands directly, so flag
// parsing and process exit codes are exercised the way an operator
// actually runs this binary.
func TestScripts(t *testing.T) {
	bin, err := buildTbridge(t)
	if err != nil {
		t.Fatalf("build tbridge: %v", err)
	}

	ctx := context.Background()
	engine := &script.Engine{
		Cmds:  script.DefaultCmds(),
		Conds: script.DefaultConds(),
	}
	env := append(os.Environ(), "TBRIDGE_BIN="+bin)
	scripttest.Test(t, ctx, engine, env, "testdata/script/*.txt")
}

func buildTbridge(t *testing.T) (string, error) {
	t.Helper()
	dir := t.TempDir()
	bin := dir + "/tbridge"
	cmd := exec.Command("go", "build", "-o", bin, ".")
	cmd.Dir = "."
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Logf("go build output: %s", out)
		return "", err
	}
	return bin, nil
}
