package config

// DefaultConfig returns the React-Native-for-web build: a single index_web entry,
// esbuild downleveling for application code and the untranspiled React Native
// packages, and polyfill/vendors/commons cache groups.
func DefaultConfig() Config {
	cfg := Config{
		Resolution: Resolution{
			Entries: []Entry{{Name: "index_web", Path: "index_web.js"}},
			Alias: map[string]string{
				"@hyext-beyond/core": "node_modules/@hyext-beyond/core/index.web.js",
			},
			Modules:    []string{"node_modules"},
			Extensions: []string{".js"},
		},
		Transform: Transform{
			Test: []string{".js", ".ts", ".tsx"},
			Exclude: Exclude{
				Base: "node_modules",
				Allow: []string{
					"@hyext/hy-ui",
					"@hyext-beyond/hy-ui-native",
					"@hyext-beyond/core",
					"react-router-native",
					"react-native-web",
				},
			},
			Transforms: []TransformSpec{
				{
					Name: "esbuild",
					Esbuild: &EsbuildSettings{
						Target: "es2015",
						Define: map[string]string{
							"__DEV__":              "false",
							"process.env.NODE_ENV": `"production"`,
						},
					},
				},
			},
		},
		Policy: Policy{
			Chunks:                 ChunksAsync,
			MinSize:                10000,
			MaxSize:                0,
			MinChunks:              1,
			MaxAsyncRequests:       6,
			MaxInitialRequests:     7,
			AutomaticNameDelimiter: "~",
			RuntimeChunk:           RuntimeMultiple,
			CacheGroups: []CacheGroup{
				{
					Key:  "polyfill",
					Name: "polyfill",
					Test: []string{
						"/node_modules/core-js/",
						"/node_modules/raf/",
						"/node_modules/@babel/",
						"/node_modules/babel/",
					},
					Chunks:             ChunksAll,
					Priority:           10,
					ReuseExistingChunk: true,
					Class:              "polyfill",
				},
				{
					Key:                "vendors",
					Name:               "vendors",
					Test:               []string{"/node_modules/"},
					Chunks:             ChunksInitial,
					Priority:           9,
					MinChunks:          1,
					ReuseExistingChunk: true,
					Class:              "vendor",
				},
				{
					Key:                "commons",
					Name:               "commons",
					MinChunks:          2,
					Priority:           8,
					ReuseExistingChunk: true,
					Class:              "common",
				},
				{
					Key:                "default",
					MinChunks:          2,
					Priority:           -20,
					ReuseExistingChunk: true,
					Class:              "default",
				},
			},
		},
		Output: Output{
			Path:          "dist",
			Filename:      "[name].bundle.js",
			ChunkFilename: "[name].chunk.js",
			PublicPath:    "https://test.com/",
			ModuleIDs:     "hashed",
		},
		HTML: HTML{
			Filename: "bundle.html",
			Chunks:   []string{"polyfill", "vendors", "commons", "runtime~index_web", "index_web"},
		},
	}

	return cfg.withDefaults()
}
