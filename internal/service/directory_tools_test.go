package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/Sentinel-Gate/hrgate/internal/domain/directory"
	"github.com/Sentinel-Gate/hrgate/internal/domain/tool"
)

func newTestTools(t *testing.T, opts ToolOptions) (*tool.Registry, *fakeDirectory) {
	t.Helper()
	svc, fake := newTestDirectoryService(t)
	reg := tool.NewRegistry()
	if err := NewDirectoryTools(svc, opts).Register(reg); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	return reg, fake
}

func callTool(t *testing.T, reg *tool.Registry, name, args string) (*tool.CallResult, error) {
	t.Helper()
	_, handler, ok := reg.Lookup(name)
	if !ok {
		t.Fatalf("tool %s not registered", name)
	}
	return handler(context.Background(), json.RawMessage(args))
}

func decodeText(t *testing.T, res *tool.CallResult) map[string]any {
	t.Helper()
	if res == nil || len(res.Content) != 1 {
		t.Fatalf("result = %+v, want one content block", res)
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(res.Content[0].Text), &out); err != nil {
		t.Fatalf("result text is not a JSON object: %v\n%s", err, res.Content[0].Text)
	}
	return out
}

func errorDetail(t *testing.T, res *tool.CallResult) map[string]any {
	t.Helper()
	if res == nil || !res.IsError {
		t.Fatalf("result = %+v, want isError", res)
	}
	wrapped, ok := res.StructuredContent.(map[string]any)
	if !ok {
		t.Fatalf("structured content = %T", res.StructuredContent)
	}
	detail, ok := wrapped["error"].(map[string]any)
	if !ok {
		t.Fatalf("structured content has no error object: %v", wrapped)
	}
	return detail
}

func TestDirectoryTools_Register(t *testing.T) {
	t.Parallel()

	reg, _ := newTestTools(t, ToolOptions{})
	if reg.Len() != 9 {
		t.Fatalf("registered %d tools, want 9", reg.Len())
	}

	writes := map[string]bool{
		ToolPostUserData:     true,
		ToolUpdateManagerHR:  true,
		ToolManageUserFields: true,
		ToolUpdateUserOData:  true,
	}
	for _, tl := range reg.List() {
		if tl.ReadOnly() == writes[tl.Name] {
			t.Errorf("%s ReadOnly() = %v", tl.Name, tl.ReadOnly())
		}
		if !json.Valid(tl.InputSchema) {
			t.Errorf("%s has an invalid input schema", tl.Name)
		}
	}

	if err := NewDirectoryTools(nil, ToolOptions{}).Register(reg); err == nil {
		t.Error("registering the tool set twice should fail")
	}
}

func TestDirectoryTools_ArgumentErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		tool    string
		args    string
		wantMsg string
	}{
		{"missing userId", ToolGetUserData, `{}`, "userId is required"},
		{"empty arguments", ToolSearchUserByEmail, ``, "email is required"},
		{"malformed", ToolGetUserData, `{"userId": 7}`, "malformed arguments"},
		{"empty data", ToolPostUserData, `{"userId":"u100","data":{}}`, "data must not be empty"},
		{"no relationship target", ToolUpdateManagerHR, `{"userId":"u100"}`, "at least one of managerId or hrId"},
		{"bad action", ToolManageUserFields, `{"action":"delete","userId":"u100"}`, "action must be one of: get update"},
		{"update without fields", ToolManageUserFields, `{"action":"update","userId":"u100"}`, "fields object is required"},
		{"bad format", ToolGetCompleteEmployeeData, `{"userId":"u100","format":"csv"}`, "format must be one of"},
		{"bad manager type", ToolUpdateUserOData, `{"userId":"u100","managerId":5}`, "managerId must be a string or null"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			reg, fake := newTestTools(t, ToolOptions{})

			res, err := callTool(t, reg, tt.tool, tt.args)
			var argErr *tool.ArgumentError
			if !errors.As(err, &argErr) {
				t.Fatalf("error = %v (result %+v), want ArgumentError", err, res)
			}
			if argErr.Tool != tt.tool || !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("error = %q, want mention of %q", err, tt.wantMsg)
			}
			if fake.upsertCount() != 0 {
				t.Error("upsert issued for invalid arguments")
			}
		})
	}
}

func TestDirectoryTools_GetUserData(t *testing.T) {
	t.Parallel()
	reg, _ := newTestTools(t, ToolOptions{})

	res, err := callTool(t, reg, ToolGetUserData, `{"userId":"alice@acme.test","fields":["firstName","Email"]}`)
	if err != nil {
		t.Fatalf("call error = %v", err)
	}
	out := decodeText(t, res)
	if len(out) != 2 || out["FIRSTNAME"] != "Alice" || out["EMAIL"] != "alice@acme.test" {
		t.Errorf("fields = %v", out)
	}

	res, err = callTool(t, reg, ToolGetUserData, `{"userId":"ghost"}`)
	if err != nil {
		t.Fatalf("call error = %v", err)
	}
	detail := errorDetail(t, res)
	if detail["kind"] != "not_found" || detail["token"] != "ghost" {
		t.Errorf("detail = %v", detail)
	}
	if !strings.HasPrefix(res.Content[0].Text, "Failed to get user data: user not found") {
		t.Errorf("text = %q", res.Content[0].Text)
	}
}

func TestDirectoryTools_PostUserData(t *testing.T) {
	t.Parallel()

	t.Run("permissive keeps unknown keys", func(t *testing.T) {
		t.Parallel()
		reg, fake := newTestTools(t, ToolOptions{PostMode: directory.ModePermissive})
		res, err := callTool(t, reg, ToolPostUserData, `{"userId":"u100","data":{"city":"Oslo","customThing":"x"}}`)
		if err != nil {
			t.Fatalf("call error = %v", err)
		}
		out := decodeText(t, res)
		if out["success"] != true || out["userId"] != "u100" {
			t.Errorf("result = %v", out)
		}
		p := fake.lastUpsert(t)
		if p["city"] != "Oslo" || p["customThing"] != "x" || p["username"] != "alice" {
			t.Errorf("payload = %#v", p)
		}
	})

	t.Run("strict rejects unknown keys", func(t *testing.T) {
		t.Parallel()
		reg, fake := newTestTools(t, ToolOptions{PostMode: directory.ModeStrict})
		res, err := callTool(t, reg, ToolPostUserData, `{"userId":"u100","data":{"customThing":"x"}}`)
		if err != nil {
			t.Fatalf("call error = %v", err)
		}
		detail := errorDetail(t, res)
		if detail["kind"] != "unknown_field" {
			t.Errorf("detail = %v", detail)
		}
		if fake.upsertCount() != 0 {
			t.Error("upsert issued")
		}
	})

	t.Run("missing required field", func(t *testing.T) {
		t.Parallel()
		reg, _ := newTestTools(t, ToolOptions{})
		res, err := callTool(t, reg, ToolPostUserData, `{"userId":"u200","data":{"CITY":"Oslo"}}`)
		if err != nil {
			t.Fatalf("call error = %v", err)
		}
		detail := errorDetail(t, res)
		if detail["kind"] != "missing_required_field" || detail["field"] != "USERNAME" {
			t.Errorf("detail = %v", detail)
		}
	})

	t.Run("remote rejection", func(t *testing.T) {
		t.Parallel()
		reg, fake := newTestTools(t, ToolOptions{})
		fake.upsertErr = &directory.RemoteRejectedError{Status: 400, Body: "bad payload"}
		res, err := callTool(t, reg, ToolPostUserData, `{"userId":"u100","data":{"CITY":"Oslo"}}`)
		if err != nil {
			t.Fatalf("call error = %v", err)
		}
		detail := errorDetail(t, res)
		if detail["kind"] != "remote_rejected" || detail["status"] != 400 || detail["body"] != "bad payload" {
			t.Errorf("detail = %v", detail)
		}
	})

	t.Run("internal errors reach the router", func(t *testing.T) {
		t.Parallel()
		reg, fake := newTestTools(t, ToolOptions{})
		fake.upsertErr = errors.New("encode failure")
		if _, err := callTool(t, reg, ToolPostUserData, `{"userId":"u100","data":{"CITY":"Oslo"}}`); err == nil {
			t.Error("call error = nil, want internal error")
		}
	})
}

func TestDirectoryTools_Relationships(t *testing.T) {
	t.Parallel()
	reg, fake := newTestTools(t, ToolOptions{})

	res, err := callTool(t, reg, ToolGetManagerHR, `{"userId":"u100","getHR":false}`)
	if err != nil {
		t.Fatalf("call error = %v", err)
	}
	out := decodeText(t, res)
	manager, _ := out["manager"].(map[string]any)
	if manager["userId"] != "u900" {
		t.Errorf("manager = %v", out["manager"])
	}
	if _, present := out["hr"]; present {
		t.Error("hr returned although getHR=false")
	}

	res, err = callTool(t, reg, ToolUpdateManagerHR, `{"userId":"u100","managerId":"NO_MANAGER","hrId":"E-900"}`)
	if err != nil {
		t.Fatalf("call error = %v", err)
	}
	out = decodeText(t, res)
	if out["manager"] != "User('NO_MANAGER')" || out["hr"] != "User('u900')" {
		t.Errorf("result = %v", out)
	}
	if p := fake.lastUpsert(t); p["status"] != "t" || p["username"] != "alice" {
		t.Errorf("payload = %#v", p)
	}
}

func TestDirectoryTools_LinkValues(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		tool      string
		args      string
		wantKind  string
		wantField string
	}{
		{"sentinel spelling is exact", ToolUpdateManagerHR, `{"userId":"u100","managerId":"no_manager"}`, "not_found", ""},
		{"object link in data", ToolPostUserData, `{"userId":"u100","data":{"manager":{"userId":"u900"}}}`, "invalid_field_value", "MANAGER"},
		{"list link in additional fields", ToolUpdateUserOData, `{"userId":"u100","additionalFields":{"hr":["u900"]}}`, "invalid_field_value", "HR"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			reg, fake := newTestTools(t, ToolOptions{})

			res, err := callTool(t, reg, tt.tool, tt.args)
			if err != nil {
				t.Fatalf("call error = %v", err)
			}
			detail := errorDetail(t, res)
			if detail["kind"] != tt.wantKind {
				t.Errorf("kind = %v, want %s", detail["kind"], tt.wantKind)
			}
			if tt.wantField != "" && detail["field"] != tt.wantField {
				t.Errorf("field = %v, want %s", detail["field"], tt.wantField)
			}
			if n := fake.upsertCount(); n != 0 {
				t.Errorf("upserts = %d, want none", n)
			}
		})
	}
}

func TestDirectoryTools_ManageUserFields(t *testing.T) {
	t.Parallel()
	reg, fake := newTestTools(t, ToolOptions{})

	res, err := callTool(t, reg, ToolManageUserFields, `{"action":"get","userId":"u100","fields":{"department":null}}`)
	if err != nil {
		t.Fatalf("call error = %v", err)
	}
	out := decodeText(t, res)
	fields, _ := out["fields"].(map[string]any)
	if len(fields) != 1 || fields["DEPARTMENT"] != "Sales" {
		t.Errorf("fields = %v", out["fields"])
	}

	res, err = callTool(t, reg, ToolManageUserFields, `{"action":"update","userId":"u100","fields":{"bogus":"1","title":"Lead"}}`)
	if err != nil {
		t.Fatalf("call error = %v", err)
	}
	detail := errorDetail(t, res)
	if detail["kind"] != "unknown_field" {
		t.Errorf("detail = %v", detail)
	}
	if fake.upsertCount() != 0 {
		t.Error("upsert issued for unknown field")
	}

	res, err = callTool(t, reg, ToolManageUserFields, `{"action":"update","userId":"u100","fields":{"title":"Lead"}}`)
	if err != nil || res.IsError {
		t.Fatalf("update = %+v, %v", res, err)
	}
	if p := fake.lastUpsert(t); p["title"] != "Lead" {
		t.Errorf("payload = %#v", p)
	}
}

func TestDirectoryTools_UpdateUserOData(t *testing.T) {
	t.Parallel()
	reg, fake := newTestTools(t, ToolOptions{})

	res, err := callTool(t, reg, ToolUpdateUserOData,
		`{"userId":"u100","firstName":"Alicia","timeZone":"CET","managerId":null,"additionalFields":{"custom01":"x","nickname":"Ali"}}`)
	if err != nil {
		t.Fatalf("call error = %v", err)
	}
	if res.IsError {
		t.Fatalf("result = %+v", res)
	}

	p := fake.lastUpsert(t)
	if p["firstName"] != "Alicia" || p["timeZone"] != "CET" || p["custom01"] != "x" || p["nickname"] != "Ali" {
		t.Errorf("payload = %#v", p)
	}
	if link, ok := p["manager"].(directory.LinkReference); !ok || link.Metadata.URI != "User('NO_MANAGER')" {
		t.Errorf("manager = %#v", p["manager"])
	}
	if _, ok := p["hr"]; ok {
		t.Error("hr written although hrId was absent")
	}
}

func TestDirectoryTools_CompleteEmployeeData(t *testing.T) {
	t.Parallel()
	reg, _ := newTestTools(t, ToolOptions{})

	res, err := callTool(t, reg, ToolGetCompleteEmployeeData, `{"userId":"boss@acme.test","format":"xml"}`)
	if err != nil {
		t.Fatalf("call error = %v", err)
	}
	if res.StructuredContent != nil || !strings.HasPrefix(res.Content[0].Text, "<entry>") {
		t.Errorf("xml result = %+v", res)
	}

	res, err = callTool(t, reg, ToolGetCompleteEmployeeData, `{"userId":"u100","expandProperties":["manager"]}`)
	if err != nil {
		t.Fatalf("call error = %v", err)
	}
	out := decodeText(t, res)
	data, _ := out["completeData"].(map[string]any)
	if data["userId"] != "u100" || out["format"] != "json" {
		t.Errorf("result = %v", out)
	}
}

func TestDirectoryTools_Statistics(t *testing.T) {
	t.Parallel()
	reg, fake := newTestTools(t, ToolOptions{})

	res, err := callTool(t, reg, ToolGetUserStatistics, `{"filters":{"status":"t","ignored":null}}`)
	if err != nil {
		t.Fatalf("call error = %v", err)
	}
	out := decodeText(t, res)
	if out["totalUsers"] != float64(4) || out["activeUsers"] != float64(3) || out["filtered_by_status"] != float64(3) {
		t.Errorf("statistics = %v", out)
	}
	if _, ok := out["filtered_by_ignored"]; ok {
		t.Error("null filter applied")
	}

	fake.mu.Lock()
	last := fake.queries[len(fake.queries)-1]
	fake.mu.Unlock()
	if last.Filter != "" || !last.InlineCount {
		t.Errorf("statistics query = %+v, want unfiltered with inline count", last)
	}
}
