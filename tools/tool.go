// Package tools provides user-authored tools: their schema declaration and
// the sandboxed executor that runs their script bodies.
//
// Information Hiding:
// - Script engine and injected capabilities hidden behind Executor
// - JSON-Schema generation hidden in Definition
// - Registry storage and lookup hidden from consumers
package tools

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/loomhq/loom/llm"
)

// ParamType is the closed set of parameter types a tool may declare.
type ParamType string

const (
	TypeString  ParamType = "string"
	TypeNumber  ParamType = "number"
	TypeBoolean ParamType = "boolean"
	TypeArray   ParamType = "array"
	TypeObject  ParamType = "object"
)

// Valid reports whether t is one of the declared types.
func (t ParamType) Valid() bool {
	switch t {
	case TypeString, TypeNumber, TypeBoolean, TypeArray, TypeObject:
		return true
	}
	return false
}

// Parameter declares one named tool parameter.
type Parameter struct {
	Name        string    `json:"name"`
	Type        ParamType `json:"type"`
	Description string    `json:"description,omitempty"`
	Required    bool      `json:"required"`
	// Enum restricts the value to a fixed set, when non-empty.
	Enum []string `json:"enum,omitempty"`
}

// Tool is a user-authored capability the model may invoke mid-conversation.
// Code is free-form script text interpreted by the Executor. The core only
// reads tools; ownership lives in persisted storage.
type Tool struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Parameters  []Parameter `json:"parameters"`
	Code        string      `json:"code"`
	Emoji       string      `json:"emoji,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// New creates a tool with a fresh id and timestamps.
func New(name, description, code string, params ...Parameter) Tool {
	now := time.Now()
	return Tool{
		ID:          uuid.NewString(),
		Name:        name,
		Description: description,
		Parameters:  params,
		Code:        code,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Validate checks the declaration is well-formed.
func (t Tool) Validate() error {
	if t.Name == "" {
		return fmt.Errorf("tool name cannot be empty")
	}
	if t.Code == "" {
		return fmt.Errorf("tool %q: code cannot be empty", t.Name)
	}
	for _, p := range t.Parameters {
		if p.Name == "" {
			return fmt.Errorf("tool %q: parameter name cannot be empty", t.Name)
		}
		if !p.Type.Valid() {
			return fmt.Errorf("tool %q: parameter %q has invalid type %q", t.Name, p.Name, p.Type)
		}
	}
	return nil
}

// Definition renders the declaration the model sees: a JSON-Schema object
// with properties, required names, and enums.
func (t Tool) Definition() llm.ToolDefinition {
	properties := make(map[string]any, len(t.Parameters))
	var required []string
	for _, p := range t.Parameters {
		prop := map[string]any{"type": string(p.Type)}
		if p.Description != "" {
			prop["description"] = p.Description
		}
		if len(p.Enum) > 0 {
			prop["enum"] = p.Enum
		}
		if p.Type == TypeArray {
			prop["items"] = map[string]any{"type": "string"}
		}
		properties[p.Name] = prop
		if p.Required {
			required = append(required, p.Name)
		}
	}

	params := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		params["required"] = required
	}

	return llm.ToolDefinition{
		Name:        t.Name,
		Description: t.Description,
		Parameters:  params,
	}
}
