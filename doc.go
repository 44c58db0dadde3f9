/*
Jnigen generates the C glue code between Java classes declaring native methods and the native libraries they call.

For every class with native methods it writes a header and an implementation file holding one JNI entry point per method, with the argument marshaling, the call and the cleanup. Classes mirroring native structs get accessor files that copy fields between the Java object and the native struct. Every entry point can be counted through a stats table whose indices stay stable across runs.

Usage:

	jnigen [flags] [<target> [<output> [<source>]]]

With no target, the configured default target (or the host platform) is generated. "all" generates every target in jnigen.toml.

# Architecture pipeline (for developers)

Each element in the pipeline has a distinct package. They are run per target by [pipeline.Runner].
 1. [config]: Read 'jnigen.toml' and select the generation targets
 2. [parser] and [metadata]: Parse the Java sources and load the metadata overlay
 3. [ir]: Build the declaration model, resolving inline directives and metadata records
 4. [typemap]: Map every parameter and return value to its native type and marshaling discipline
 5. [natives], [structs] and [stats]: Emit the glue, struct accessor and instrumentation files
 6. [pipeline]: Compare with the existing output and write what changed
*/
package main
