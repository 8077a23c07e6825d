// Package config holds hive's layered launch configuration.
//
// Configuration arrives in three layers, highest priority first:
//
//  1. explicit values (command-line flags, then HIVE_* environment variables)
//  2. the exports of an optional config module (CUE, YAML or Lua file)
//  3. the built-in defaults record embedded in this package
//
// Layers are combined with SetDefaults, which only fills keys the higher
// layer left unset. The merged map is then decoded into typed Options.
package config
