package natives

import (
	"github.com/refaktor/jnigen/config"
	"github.com/refaktor/jnigen/emit/emitio"
	"github.com/refaktor/jnigen/emit/stats"
)

// EmitCommon returns the per-target header included by every generated
// file: platform and word size macros and dynamic symbol lookup.
func EmitCommon(t config.Target) emitio.File {
	var cb emitio.CodeBuilder
	cb.Banner()
	end := cb.IncludeGuard(emitio.CommonHeader)
	cb.Linef(`#if !defined(_WIN32) && !defined(_GNU_SOURCE)`)
	cb.Linef(`#define _GNU_SOURCE`)
	cb.Linef(`#endif`)
	cb.Linef(``)
	cb.Linef(`#include <jni.h>`)
	cb.Linef(`#include <stdint.h>`)
	cb.Linef(`#include <string.h>`)
	cb.Linef(``)
	cb.Linef(`#define %v 1`, t.PlatformMacro())
	cb.Linef(`#define JNIGEN_WORD_SIZE %v`, t.WordSize)
	cb.Linef(``)
	cb.Linef(`#ifdef JNIGEN_CUSTOM_HEADER`)
	cb.Linef(`#include JNIGEN_CUSTOM_HEADER`)
	cb.Linef(`#endif`)
	cb.Linef(``)
	cb.Linef(`#ifndef JNIGEN_LOOKUP`)
	cb.Linef(`#ifdef _WIN32`)
	cb.Linef(`#include <windows.h>`)
	cb.Linef(`#define JNIGEN_LOOKUP(name) ((void *)GetProcAddress(GetModuleHandle(NULL), name))`)
	cb.Linef(`#else`)
	cb.Linef(`#include <dlfcn.h>`)
	cb.Linef(`#define JNIGEN_LOOKUP(name) dlsym(RTLD_DEFAULT, name)`)
	cb.Linef(`#endif`)
	cb.Linef(`#endif`)
	cb.Linef(``)
	cb.Linef(`#define JNIGEN_LOAD_FUNCTION(var, name) \`)
	cb.Indent++
	cb.Linef(`static int var##_initialized = 0; \`)
	cb.Linef(`static void *var = NULL; \`)
	cb.Linef(`if (!var##_initialized) { \`)
	cb.Indent++
	cb.Linef(`var = JNIGEN_LOOKUP(#name); \`)
	cb.Linef(`var##_initialized = 1; \`)
	cb.Indent--
	cb.Linef(`}`)
	cb.Indent--
	cb.Linef(``)
	cb.Linef(`#include "%v"`, stats.HeaderFile)
	cb.Linef(``)
	end()
	return cb.File(emitio.CommonHeader)
}
