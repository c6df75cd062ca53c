package glsllib

import _ "embed"

//go:embed opUnion.glsl
var opUnionSrc []byte

// Union selects the nearer of two (distance, id) results. The left operand wins ties.
//
//	vec2 opUnion(vec2 a, vec2 b)
func Union() ShaderFunction { return mustFunction(opUnionSrc) }

//go:embed opSubtract.glsl
var opSubtractSrc []byte

// Subtract removes b from a, keeping the id of a.
//
//	vec2 opSubtract(vec2 a, vec2 b)
func Subtract() ShaderFunction { return mustFunction(opSubtractSrc) }

//go:embed opIntersect.glsl
var opIntersectSrc []byte

// Intersect selects the farther of two results.
//
//	vec2 opIntersect(vec2 a, vec2 b)
func Intersect() ShaderFunction { return mustFunction(opIntersectSrc) }

//go:embed opSmoothUnion.glsl
var opSmoothUnionSrc []byte

// SmoothUnion blends two results over a distance k. The id of the nearer operand is kept.
//
//	vec2 opSmoothUnion(vec2 a, vec2 b, float k)
func SmoothUnion() ShaderFunction { return mustFunction(opSmoothUnionSrc) }

// CombineOps returns every combine function in a fixed order.
func CombineOps() []ShaderFunction {
	return []ShaderFunction{Union(), Subtract(), Intersect(), SmoothUnion()}
}
