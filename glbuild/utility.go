package glbuild

// Utility kernel names.
const (
	KernelClear   = "main"
	KernelReflect = "reflect"
	KernelMix     = "mix"
	KernelPreview = "preview"
)

// BuildUtility generates the program of scene independent kernels:
//   - main clears the per bounce accumulators. Bounce 0 also clears color, mask and throughput.
//   - reflect adds the background seen by rays that missed on a reflection bounce and
//     turns rays that hit into reflected rays, scaling throughput by reflectivity.
//   - mix blends color into the running sample average: result = result + (color-result)*w.
//   - preview composites a flat lit preview of the first bounce into the final image.
func (s *Synthesizer) BuildUtility() (*Artifact, error) {
	pg := s.newProgram("utility", 0, 0)
	pg.main = append(pg.main, utilityMain...)
	return pg.finish(KernelReflect, KernelMix, KernelPreview)
}

const utilityMain = `void main() {
` + mainPrologue + `	vec4 meta = imageLoad(img_meta, px);
	vec4 oid = imageLoad(img_objectid, px);
#if defined(KERNEL_REFLECT)
	vec3 c = imageLoad(img_color, px).rgb;
	if (oid.x == -1.) {
		if (BOUNCE > 0.) {
			c += meta.w * imageLoad(img_background, px).rgb;
			imageStore(img_color, px, vec4(c, 1.));
		}
		meta.w = 0.;
	} else {
		vec3 ro = imageLoad(img_rayorigin, px).xyz;
		vec3 rd = imageLoad(img_raydir, px).xyz;
		vec3 n = imageLoad(img_normal, px).xyz;
		vec3 p = ro + rd*imageLoad(img_depth, px).x;
		imageStore(img_rayorigin, px, vec4(p + n*2e-3, 1.));
		imageStore(img_raydir, px, vec4(reflect(rd, n), 0.));
		meta.w *= meta.z;
	}
	imageStore(img_meta, px, meta);
#elif defined(KERNEL_MIX)
	vec4 c = imageLoad(img_color, px);
	vec4 r = imageLoad(img_result, px);
	if (SAMPLE > 0.) {
		c = r + (c - r)*MIX_WEIGHT;
	}
	imageStore(img_result, px, c);
	imageStore(img_density, px, c);
#elif defined(KERNEL_PREVIEW)
	float m = imageLoad(img_mask, px).x;
	vec3 n = imageLoad(img_normal, px).xyz;
	float lambert = max(dot(n, LIGHT_DIR), 0.)*0.8 + 0.2;
	vec3 c = mix(imageLoad(img_background, px).rgb, vec3(0.8*lambert), m);
	imageStore(img_final, px, vec4(c, 1.));
#else
	imageStore(img_depth, px, vec4(1e20));
	imageStore(img_normal, px, vec4(0.));
	if (BOUNCE == 0.) {
		imageStore(img_objectid, px, vec4(-1., -1., 0., 0.));
		imageStore(img_meta, px, vec4(1., 1., 0., 1.));
		imageStore(img_color, px, vec4(0.));
		imageStore(img_mask, px, vec4(0.));
	} else {
		imageStore(img_objectid, px, vec4(-1., oid.y, 0., 0.));
		imageStore(img_meta, px, vec4(1., 1., 0., meta.w));
	}
#endif
}
`
