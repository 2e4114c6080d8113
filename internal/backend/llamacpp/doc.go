// Package llamacpp is the in-process llama.cpp generation backend. The real
// adapter compiles only with the 'llama' build tag so default builds and CI
// stay CGO-free; without the tag Register is a no-op and generation requests
// resolve to no provider.
package llamacpp

// ModuleID identifies the backend in the module registry.
const ModuleID = "llamacpp"
