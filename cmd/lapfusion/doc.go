// Package main hosts the lapfusion CLI entrypoint and command graph.
//
// The Cobra-based command tree turns terminal invocations into session runs,
// result store queries, and configuration scaffolding. It centralizes
// configuration resolution and logging setup so subcommands can focus on
// presenting results.
//
// Keep this package lean: add new functionality by extending the internal
// packages first, then surface it through dedicated commands or flags here.
package main
