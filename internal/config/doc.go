// Package config loads the optional reprotrace configuration file.
//
// The file is YAML. Missing keys keep their defaults; unknown keys are
// rejected. The decoded configuration is checked against an embedded CUE
// schema before use.
//
//	merge:
//	  batch_size: 64
//	  method: general
//	input:
//	  directory: traces/
//	output:
//	  database: out.db
//	logging:
//	  level: debug
package config
