// Package policy compiles CEL expressions into decision functions.
//
// A policy is a boolean CEL expression over two variables:
//
//	attestation — the fulfillment record: uid, schema, ref_uid, attester,
//	              recipient, time, data (payload bytes as a string)
//	obligation  — the payload decoded as JSON (empty map when the payload
//	              is not a JSON object)
//
// Example: `obligation.item == "good"`.
//
// Compiled programs are cached per expression; evaluation carries cost
// limits so a pathological policy cannot stall an arbitration run.
package policy

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"

	"github.com/oracular/verdict/internal/attest"
	"github.com/oracular/verdict/internal/oracle"
)

// Evaluator compiles and caches CEL decision policies.
type Evaluator struct {
	env   *cel.Env
	mu    sync.RWMutex
	cache map[string]cel.Program
}

// NewEvaluator creates an evaluator with the standard environment.
func NewEvaluator() (*Evaluator, error) {
	env, err := cel.NewEnv(
		cel.Variable("attestation", cel.DynType),
		cel.Variable("obligation", cel.DynType),
	)
	if err != nil {
		return nil, fmt.Errorf("create CEL environment: %w", err)
	}

	return &Evaluator{
		env:   env,
		cache: make(map[string]cel.Program),
	}, nil
}

// Compile turns a CEL expression into a DecisionFunc. Compilation errors
// surface here, before any run starts.
func (e *Evaluator) Compile(expr string) (oracle.DecisionFunc, error) {
	prg, err := e.program(expr)
	if err != nil {
		return nil, err
	}

	return func(ctx context.Context, fulfillment attest.Attestation) (bool, error) {
		out, _, err := prg.ContextEval(ctx, map[string]any{
			"attestation": attestationInput(fulfillment),
			"obligation":  obligationInput(fulfillment.Data),
		})
		if err != nil {
			return false, fmt.Errorf("evaluate policy: %w", err)
		}
		verdict, ok := out.Value().(bool)
		if !ok {
			return false, fmt.Errorf("policy result is %T, not bool", out.Value())
		}
		return verdict, nil
	}, nil
}

// program returns the cached compiled program for an expression,
// compiling it on first use.
func (e *Evaluator) program(expr string) (cel.Program, error) {
	e.mu.RLock()
	prg, hit := e.cache[expr]
	e.mu.RUnlock()
	if hit {
		return prg, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if prg, hit = e.cache[expr]; hit {
		return prg, nil
	}

	ast, issues := e.env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compile policy: %w", issues.Err())
	}
	prg, err := e.env.Program(ast,
		cel.InterruptCheckFrequency(100),
		cel.CostLimit(10000),
	)
	if err != nil {
		return nil, fmt.Errorf("build policy program: %w", err)
	}

	e.cache[expr] = prg
	return prg, nil
}

func attestationInput(a attest.Attestation) map[string]any {
	return map[string]any{
		"uid":       a.UID.String(),
		"schema":    string(a.Schema),
		"ref_uid":   a.RefUID.String(),
		"attester":  a.Attester.String(),
		"recipient": a.Recipient.String(),
		"time":      a.Time,
		"data":      string(a.Data),
	}
}

func obligationInput(data []byte) map[string]any {
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil || m == nil {
		return map[string]any{}
	}
	return m
}
