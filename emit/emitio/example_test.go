package emitio_test

import (
	"fmt"

	"github.com/refaktor/jnigen/emit/emitio"
)

func ExampleCodeBuilder() {
	var cb emitio.CodeBuilder
	cb.Banner()
	end := cb.IncludeGuard("point_structs.h")
	cb.Linef(`void *getPointFields(JNIEnv *env, jobject lpObject, void *lpStruct)`)
	cb.Linef(`{`)
	cb.Indent++
	for _, f := range []string{"x", "y"} {
		cb.Linef(`Point_set_%v(lpStruct, 0);`, f)
	}
	cb.Linef(``)
	cb.Append("if (lpStruct)\n\treturn lpStruct;")
	cb.Indent--
	cb.Linef(`}`)
	end()

	fmt.Print(cb.String())
	// Output:
	// /* Code generated by jnigen. DO NOT EDIT. */
	//
	// #ifndef JNIGEN_POINT_STRUCTS_H
	// #define JNIGEN_POINT_STRUCTS_H
	//
	// void *getPointFields(JNIEnv *env, jobject lpObject, void *lpStruct)
	// {
	// 	Point_set_x(lpStruct, 0);
	// 	Point_set_y(lpStruct, 0);
	//
	// 	if (lpStruct)
	// 		return lpStruct;
	// }
	// #endif /* JNIGEN_POINT_STRUCTS_H */
}
