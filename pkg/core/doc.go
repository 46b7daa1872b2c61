// Package core defines the shared language of the structon system.
//
// This package contains:
//   - Domain entities (Unit, Node, Edge, ExecutionResult, Run, Experience)
//   - The Store interface all persistence backends implement
//   - The error taxonomy shared by resolver, interpreter, and primitives
//
// The Golden Rule: pkg/core imports ONLY stdlib and the uuid package.
// All other packages depend on core, not the reverse.
package core
