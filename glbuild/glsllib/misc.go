// Package glsllib holds the GLSL helper functions shared by generated programs.
package glsllib

import (
	"bytes"
	_ "embed"
	"errors"
)

// ShaderFunction is the source of a single GLSL function definition.
type ShaderFunction struct {
	// Name is the function name parsed from Source.
	Name   []byte
	Source []byte
}

// MakeShaderFunction parses the function name of a GLSL function definition.
func MakeShaderFunction(shaderDef []byte) (sf ShaderFunction, err error) {
	shaderDef = bytes.TrimSpace(shaderDef)
	fnNameEnd := bytes.IndexByte(shaderDef, '(')
	fnNameStart := bytes.IndexByte(shaderDef, ' ')
	if fnNameEnd < 0 || fnNameStart < 0 || fnNameStart > fnNameEnd {
		return ShaderFunction{}, errors.New("unable to parse function name")
	}
	name := bytes.TrimSpace(shaderDef[fnNameStart:fnNameEnd])
	if len(name) == 0 {
		return ShaderFunction{}, errors.New("empty function name")
	}
	return ShaderFunction{Name: name, Source: shaderDef}, nil
}

func mustFunction(src []byte) ShaderFunction {
	sf, err := MakeShaderFunction(src)
	if err != nil {
		panic("glsllib: " + err.Error())
	}
	return sf
}

//go:embed rot2.glsl
var rot2Src []byte

// Rot2 rotates a 2D vector counter clockwise by a radians:
//
//	vec2 rot2(vec2 v, float a)
func Rot2() ShaderFunction { return mustFunction(rot2Src) }

//go:embed opTx.glsl
var opTxSrc []byte

//go:embed opTxInv.glsl
var opTxInvSrc []byte

// Transform3 returns the 3D world to local transform and its inverse with their dependencies.
// Rotations are applied about X, then Y, then Z.
//
//	vec3 opTx(vec3 p, vec3 t, vec3 r)
//	vec3 opTxInv(vec3 q, vec3 t, vec3 r)
func Transform3() []ShaderFunction {
	return []ShaderFunction{Rot2(), mustFunction(opTxSrc), mustFunction(opTxInvSrc)}
}

//go:embed opTx2.glsl
var opTx2Src []byte

//go:embed opTxInv2.glsl
var opTxInv2Src []byte

// Transform2 is the 2D version of [Transform3].
//
//	vec2 opTx2(vec2 p, vec2 t, float r)
//	vec2 opTxInv2(vec2 q, vec2 t, float r)
func Transform2() []ShaderFunction {
	return []ShaderFunction{Rot2(), mustFunction(opTx2Src), mustFunction(opTxInv2Src)}
}
