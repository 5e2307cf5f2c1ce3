package cel

import (
	"context"
	"strings"
	"testing"
)

func TestNewEvaluator(t *testing.T) {
	eval, err := NewEvaluator()
	if err != nil {
		t.Fatalf("NewEvaluator() error: %v", err)
	}
	if eval == nil {
		t.Fatal("NewEvaluator() returned nil")
	}
}

func TestCompile_InvalidExpression(t *testing.T) {
	eval, err := NewEvaluator()
	if err != nil {
		t.Fatalf("NewEvaluator() error: %v", err)
	}

	if _, err := eval.Compile(`this is not valid CEL !!!`); err == nil {
		t.Fatal("Compile() expected error for invalid expression, got nil")
	}
	if _, err := eval.Compile(`tool_name == "x"`); err == nil {
		t.Fatal("Compile() expected error for undeclared variable, got nil")
	}
	if _, err := eval.Compile(`domain + "x"`); err == nil {
		t.Fatal("Compile() expected error for non-bool condition, got nil")
	}
}

func TestEvaluate(t *testing.T) {
	eval, err := NewEvaluator()
	if err != nil {
		t.Fatalf("NewEvaluator() error: %v", err)
	}

	call := ServiceCall{
		Domain:  "lock",
		Service: "unlock",
		Data:    map[string]any{"code": "1234", "note": "front unlock please"},
		Target:  map[string]any{"entity_id": "lock.front_door, lock.back_door"},
	}

	tests := []struct {
		expr string
		want bool
	}{
		{`domain == "lock"`, true},
		{`service_name == "lock.unlock"`, true},
		{`glob("lock.*", service_name)`, true},
		{`glob("light.*", service_name)`, false},
		{`"code" in data`, true},
		{`arg(data, "code") == "1234"`, true},
		{`arg(data, "missing") == null`, true},
		{`arg_contains(data, "unlock")`, true},
		{`arg_contains(data, "garage")`, false},
		{`"lock.front_door" in entity_ids`, true},
		{`size(entity_ids) == 2`, true},
		{`entity_ids.exists(e, e.startsWith("lock.back"))`, true},
		{`size(target) == 1 && service.upperAscii() == "UNLOCK"`, true},
	}

	for _, tt := range tests {
		prg, err := eval.Compile(tt.expr)
		if err != nil {
			t.Fatalf("Compile(%q) error: %v", tt.expr, err)
		}
		got, err := eval.Evaluate(context.Background(), prg, call)
		if err != nil {
			t.Fatalf("Evaluate(%q) error: %v", tt.expr, err)
		}
		if got != tt.want {
			t.Errorf("Evaluate(%q) = %v, want %v", tt.expr, got, tt.want)
		}
	}
}

func TestEvaluate_NilMaps(t *testing.T) {
	eval, _ := NewEvaluator()
	prg, err := eval.Compile(`size(data) == 0 && size(target) == 0 && size(entity_ids) == 0`)
	if err != nil {
		t.Fatalf("Compile() error: %v", err)
	}
	got, err := eval.Evaluate(context.Background(), prg, ServiceCall{Domain: "light", Service: "turn_on"})
	if err != nil || !got {
		t.Errorf("Evaluate() = %v, %v; want true", got, err)
	}
}

func TestCompile_Limits(t *testing.T) {
	eval, _ := NewEvaluator()

	tests := []struct {
		name    string
		expr    string
		wantErr string
	}{
		{"valid", `domain == "lock"`, ""},
		{"dyn result", `arg(data, "force")`, ""},
		{"empty", ``, "empty"},
		{"too long", `domain == "` + strings.Repeat("a", maxConditionLength) + `"`, "too long"},
		{"too deep", strings.Repeat("(", maxConditionNesting+1) + "true" + strings.Repeat(")", maxConditionNesting+1), "nesting too deep"},
		{"at depth limit", strings.Repeat("(", maxConditionNesting) + "true" + strings.Repeat(")", maxConditionNesting), ""},
		{"invalid", `domain ==`, "invalid condition"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := eval.Compile(tt.expr)
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Compile() error = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Compile() error = %v, want %q", err, tt.wantErr)
			}
		})
	}
}

func TestEntityIDs(t *testing.T) {
	tests := []struct {
		name string
		call ServiceCall
		want []string
	}{
		{"none", ServiceCall{}, []string{}},
		{"string list", ServiceCall{Target: map[string]any{"entity_id": "light.a,light.b"}}, []string{"light.a", "light.b"}},
		{"json list", ServiceCall{Target: map[string]any{"entity_id": []any{"light.a", 3}}}, []string{"light.a"}},
		{"data fallback", ServiceCall{Data: map[string]any{"entity_id": "switch.x"}}, []string{"switch.x"}},
	}
	for _, tt := range tests {
		got := entityIDs(tt.call)
		if strings.Join(got, "|") != strings.Join(tt.want, "|") {
			t.Errorf("%s: entityIDs() = %v, want %v", tt.name, got, tt.want)
		}
	}
}
