// Package stage defines the four per-page processing stages (text detection,
// OCR, translation, inpainting), the capability interface each stage backend
// implements, and the error taxonomy shared by the module manager and the
// pipeline orchestrator.
//
// Every backend satisfies the same shape: Name() plus
// Run(ctx, input) (result, error). Concrete backends are variants chosen by
// configuration and constructed through a modules.Registry; they never know
// about the document model, which keeps them transport-agnostic (local
// libraries, subprocesses or remote APIs).
package stage
