package cmd

import (
	"bytes"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/Sentinel-Gate/hrgate/internal/domain/directory"
)

func runFields(t *testing.T, args ...string) []directory.Field {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs(append([]string{"fields"}, args...))
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
		fieldsRequiredOnly = false
	})
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("fields %v: %v", args, err)
	}

	var doc struct {
		Fields []directory.Field `yaml:"fields"`
	}
	if err := yaml.Unmarshal(out.Bytes(), &doc); err != nil {
		t.Fatalf("output is not YAML: %v\n%s", err, out.String())
	}
	return doc.Fields
}

func TestFieldsCmd(t *testing.T) {
	all := runFields(t)
	if len(all) != len(directory.Fields()) {
		t.Errorf("printed %d fields, want %d", len(all), len(directory.Fields()))
	}

	required := runFields(t, "--required")
	if len(required) != len(directory.RequiredFields()) {
		t.Errorf("printed %d required fields, want %d", len(required), len(directory.RequiredFields()))
	}
	for _, f := range required {
		if !f.Required {
			t.Errorf("field %s printed with --required but is optional", f.Name)
		}
	}
}

func TestCommandsRegistered(t *testing.T) {
	want := map[string]bool{"start": false, "stop": false, "resolve": false, "fields": false, "audit": false, "hash-key": false, "version": false}
	for _, c := range rootCmd.Commands() {
		if _, ok := want[c.Name()]; ok {
			want[c.Name()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("%s command not registered with rootCmd", name)
		}
	}
}
