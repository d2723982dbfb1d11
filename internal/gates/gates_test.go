package gates_test

import (
	"testing"

	"github.com/inflatable-cookie/convergence-sub001/internal/gates"
	"github.com/inflatable-cookie/convergence-sub001/internal/model"
)

func TestValidateGraphAcceptsValidDAG(t *testing.T) {
	g := model.GateGraph{Gates: []model.GateDef{
		{ID: "dev-intake"},
		{ID: "team", Upstream: []string{"dev-intake"}},
		{ID: "ship", Upstream: []string{"team"}},
	}}
	if err := gates.ValidateGraph(g); err != nil {
		t.Fatalf("expected a valid DAG to pass, got: %v", err)
	}
}

func TestValidateGraphRejectsUnknownUpstream(t *testing.T) {
	g := model.GateGraph{Gates: []model.GateDef{
		{ID: "team", Upstream: []string{"does-not-exist"}},
	}}
	if err := gates.ValidateGraph(g); err == nil {
		t.Fatal("expected an error for an unknown upstream reference")
	}
}

func TestValidateGraphRejectsCycle(t *testing.T) {
	g := model.GateGraph{Gates: []model.GateDef{
		{ID: "a", Upstream: []string{"b"}},
		{ID: "b", Upstream: []string{"a"}},
	}}
	if err := gates.ValidateGraph(g); err == nil {
		t.Fatal("expected an error for a cycle")
	}
}

func TestValidateGraphRejectsDuplicateID(t *testing.T) {
	g := model.GateGraph{Gates: []model.GateDef{
		{ID: "dev-intake"},
		{ID: "dev-intake"},
	}}
	if err := gates.ValidateGraph(g); err == nil {
		t.Fatal("expected an error for a duplicate gate id")
	}
}

func TestValidateGraphRejectsInvalidID(t *testing.T) {
	g := model.GateGraph{Gates: []model.GateDef{
		{ID: "Not Valid!"},
	}}
	if err := gates.ValidateGraph(g); err == nil {
		t.Fatal("expected an error for a syntactically invalid gate id")
	}
}

func TestValidatePromotionEdge(t *testing.T) {
	g := model.GateGraph{Gates: []model.GateDef{
		{ID: "dev-intake"},
		{ID: "team", Upstream: []string{"dev-intake"}},
	}}
	if err := gates.ValidatePromotionEdge(g, "dev-intake", "team"); err != nil {
		t.Fatalf("expected a legal edge to pass, got: %v", err)
	}
	if err := gates.ValidatePromotionEdge(g, "team", "dev-intake"); err == nil {
		t.Fatal("expected promoting backward (non-upstream edge) to fail")
	}
	if err := gates.ValidatePromotionEdge(g, "ghost", "team"); err == nil {
		t.Fatal("expected an unknown from_gate to fail")
	}
}

func TestFind(t *testing.T) {
	g := model.GateGraph{Gates: []model.GateDef{{ID: "dev-intake", Name: "Dev Intake"}}}
	gate, ok := gates.Find(g, "dev-intake")
	if !ok || gate.Name != "Dev Intake" {
		t.Fatalf("Find(dev-intake) = %+v, %v", gate, ok)
	}
	if _, ok := gates.Find(g, "missing"); ok {
		t.Fatal("Find should report false for an unknown gate id")
	}
}
