package glbuild

import (
	"fmt"

	"github.com/soypat/sdfgraph"
)

// template emits the component's functions and the main kernel wrapping them
// with the inputs and outputs of the component's kind.
func (pg *program) template(c *sdfgraph.Component, qf *qualifier) error {
	if len(c.Functions) == 0 {
		return fmt.Errorf("%s %q has no function", c.Kind, c.Name)
	}
	name, err := pg.addFunction(c, 0, qf)
	if err != nil {
		return err
	}
	b := append(pg.main[:0], "void main() {\n"...)
	b = append(b, mainPrologue...)
	switch c.Kind {
	case sdfgraph.KindCamera:
		if c.Dim == 2 {
			b = append(b, "\tvec2 pos = "...)
			b = append(b, name...)
			b = append(b, "(uv);\n"...)
			b = pg.appendMonitor(b, "pos", 2)
			b = append(b, "\timageStore(img_rayorigin, px, vec4(pos, 0., 1.));\n"...)
			b = append(b, "\timageStore(img_raydir, px, vec4(0., 0., 1., 0.));\n"...)
			break
		}
		b = append(b, "\tvec3 ro;\n\tvec3 rd;\n\t"...)
		b = append(b, name...)
		b = append(b, "(uv, ro, rd);\n"...)
		b = pg.appendMonitor(b, "rd", 3)
		b = append(b, "\timageStore(img_rayorigin, px, vec4(ro, 1.));\n"...)
		b = append(b, "\timageStore(img_raydir, px, vec4(rd, 0.));\n"...)

	case sdfgraph.KindBackground:
		b = append(b, "\tvec3 rd = imageLoad(img_raydir, px).xyz;\n\tvec3 color = "...)
		b = append(b, name...)
		b = append(b, "(rd);\n"...)
		b = pg.appendMonitor(b, "color", 3)
		b = append(b, "\timageStore(img_background, px, vec4(color, 1.));\n"...)

	case sdfgraph.KindColorize:
		b = append(b, "\tvec3 color = "...)
		b = append(b, name...)
		b = append(b, "(imageLoad(img_density, px).rgb, uv);\n"...)
		b = pg.appendMonitor(b, "color", 3)
		b = append(b, "\timageStore(img_density, px, vec4(color, 1.));\n"...)

	case sdfgraph.KindRender2, sdfgraph.KindRender3:
		b = append(b, "\tvec3 color = "...)
		b = append(b, name...)
		b = append(b, "(imageLoad(img_density, px).rgb, imageLoad(img_background, px).rgb, imageLoad(img_mask, px).x);\n"...)
		b = pg.appendMonitor(b, "color", 3)
		b = append(b, "\timageStore(img_final, px, vec4(color, 1.));\n"...)

	default:
		return fmt.Errorf("%w: %s", errNoKind, c.Kind)
	}
	pg.main = append(b, "}\n"...)
	return nil
}

// Shared by shape programs: ray marching, normals, ambient occlusion and soft shadows
// over the program's scene function.
const shape3Helpers = `#define MAX_STEPS 256
#define MAX_DIST 1e4
#define SURF_EPS 1e-3
vec3 calcNormal(vec3 p) {
	const vec2 e = vec2(1e-3, -1e-3);
	return normalize(e.xyy*scene(p + e.xyy).x + e.yyx*scene(p + e.yyx).x + e.yxy*scene(p + e.yxy).x + e.xxx*scene(p + e.xxx).x);
}
float calcAO(vec3 p, vec3 n) {
	float occ = 0.;
	float sca = 1.;
	for (int i = 0; i < 5; i++) {
		float h = 0.01 + 0.12*float(i)/4.;
		float d = scene(p + h*n).x;
		occ += (h - d)*sca;
		sca *= 0.95;
	}
	return clamp(1. - 3.*occ, 0., 1.);
}
float calcShadow(vec3 ro, vec3 rd) {
	float res = 1.;
	float t = 0.02;
	for (int i = 0; i < 64 && t < 20.; i++) {
		float h = scene(ro + rd*t).x;
		if (h < SURF_EPS) {
			return 0.;
		}
		res = min(res, 8.*h/t);
		t += clamp(h, 0.02, 0.5);
	}
	return clamp(res, 0., 1.);
}
bool owns(float id) {
#ifdef HAS_GROUND
	if (id == -2.) {
		return true;
	}
#endif
	return id >= float(ID_MIN) && id <= float(ID_MAX);
}
`

// shape3Main is the kernel of 3D shape programs. The primary kernel finds hits,
// the variants shade the pixels hit by the program's objects.
const shape3Main = `void main() {
` + mainPrologue + `	vec4 meta = imageLoad(img_meta, px);
	vec4 oid = imageLoad(img_objectid, px);
	vec3 ro = imageLoad(img_rayorigin, px).xyz;
	vec3 rd = imageLoad(img_raydir, px).xyz;
#if defined(KERNEL_AO) || defined(KERNEL_SHADOW) || defined(KERNEL_MATERIAL)
	if (oid.x == -1.) {
		return;
	}
	vec3 n = imageLoad(img_normal, px).xyz;
	vec3 p = ro + rd*imageLoad(img_depth, px).x;
#endif
#if defined(KERNEL_AO)
	meta.x *= calcAO(p, n);
	imageStore(img_meta, px, meta);
#elif defined(KERNEL_SHADOW)
	meta.y *= calcShadow(p + n*2e-3, LIGHT_DIR);
	imageStore(img_meta, px, meta);
#elif defined(KERNEL_MATERIAL)
#ifdef MONITOR
	return;
#endif
	if (!owns(oid.x)) {
		return;
	}
	vec4 mat = objMaterial(oid.x, p, n);
	vec3 c = imageLoad(img_color, px).rgb;
	float diff = max(dot(n, LIGHT_DIR), 0.);
	c += meta.w * mat.rgb * LIGHT_COLOR * LIGHT_INTENSITY * diff * meta.y;
	if (LIGHT == 0.) {
		c += meta.w * mat.rgb * meta.x * 0.25 * background(n);
		meta.z = mat.a;
	}
	meta.y = 1.;
	imageStore(img_color, px, vec4(c, 1.));
	imageStore(img_meta, px, meta);
#else
	if (meta.w <= 0.) {
		return;
	}
#ifdef HAS_CAMERA
	if (BOUNCE == 0.) {
		CAMERA(uv, ro, rd);
	}
#endif
	float tmax = imageLoad(img_depth, px).x;
	float t = 0.;
	vec2 h = vec2(MAX_DIST, -1.);
	bool hit = false;
	for (int i = 0; i < MAX_STEPS && t < min(tmax, MAX_DIST); i++) {
		h = scene(ro + rd*t);
		if (h.x < SURF_EPS*max(1., t)) {
			hit = true;
			break;
		}
		t += h.x;
	}
	if (!hit || t >= tmax) {
		return;
	}
	imageStore(img_depth, px, vec4(t));
	imageStore(img_normal, px, vec4(calcNormal(ro + rd*t), 0.));
	oid.x = h.y;
	if (BOUNCE == 0.) {
		oid.y = h.y;
		imageStore(img_mask, px, vec4(1.));
	}
	imageStore(img_objectid, px, oid);
#ifdef MONITOR
	imageStore(img_color, px, vec4(monitorColor(), 1.));
#endif
#endif
}
`

// shape2Main is the kernel of 2D shape programs. Hits are pixels inside a shape.
const shape2Main = `void main() {
` + mainPrologue + `	vec2 pos = imageLoad(img_rayorigin, px).xy;
#ifdef HAS_CAMERA
	pos = CAMERA(uv);
#endif
	vec2 h = scene(pos);
	if (h.x >= imageLoad(img_depth, px).x) {
		return;
	}
	imageStore(img_depth, px, vec4(h.x));
	if (h.x > 0.) {
		return;
	}
	imageStore(img_objectid, px, vec4(h.y, h.y, 0., 0.));
	vec3 c = objMaterial(h.y, vec3(pos, 0.), vec3(0., 0., 1.)).rgb;
#ifdef MONITOR
	c = monitorColor();
#endif
	imageStore(img_color, px, vec4(c, 1.));
	imageStore(img_mask, px, vec4(1.));
}
`
