package emit

import (
	"encoding/json"
	"strings"
)

// chunkGlobal is the global array chunks register themselves on.
const chunkGlobal = "rnbundleChunks"

// globalObject evaluates to the page's global object in a classic script.
const globalObject = `(typeof self !== "undefined" ? self : this)`

// runtimeSource installs registered module factories, links require calls
// through each module's specifier map and loads split point chunks for
// require.async. The placeholder __CONFIG__ is replaced by runtimeConfig JSON.
//
// A chunk registration is [chunkNames, {id: [factory, specifiers]}, entry?]
// where entry is [moduleId, chunksToWaitFor]. Entries run once every chunk they
// wait for is installed, unless their chunk was fetched by require.async.
const runtimeSource = `(function (global, config) {
  if (global.__rnbundleRuntime) {
    return;
  }
  global.__rnbundleRuntime = true;

  var hasOwn = Object.prototype.hasOwnProperty;
  var modules = {};
  var cache = {};
  var installed = {};
  var requested = {};
  var loading = {};
  var deferred = [];

  function makeRequire(specifiers) {
    function resolve(specifier) {
      return hasOwn.call(specifiers, specifier) ? specifiers[specifier] : specifier;
    }
    function require(specifier) {
      return execute(resolve(specifier));
    }
    require.async = function (specifier) {
      var id = resolve(specifier);
      return loadChunks(config.splitPoints[id] || []).then(function () {
        return execute(id);
      });
    };
    return require;
  }

  function execute(id) {
    var cached = cache[id];
    if (cached) {
      return cached.exports;
    }
    var definition = modules[id];
    if (!definition) {
      throw new Error("Cannot find module '" + id + "'");
    }
    var module = (cache[id] = { id: id, exports: {} });
    definition[0].call(module.exports, module, module.exports, makeRequire(definition[1]));
    return module.exports;
  }

  function loadChunk(name) {
    if (installed[name]) {
      return Promise.resolve();
    }
    if (loading[name]) {
      return loading[name].promise;
    }
    var file = config.files[name];
    if (!file) {
      return Promise.reject(new Error("Unknown chunk '" + name + "'"));
    }
    requested[name] = true;
    var pending = {};
    pending.promise = new Promise(function (resolve, reject) {
      pending.resolve = resolve;
      var script = document.createElement("script");
      script.src = config.publicPath + file;
      script.async = true;
      script.onerror = function () {
        delete loading[name];
        reject(new Error("Loading chunk '" + name + "' failed"));
      };
      document.head.appendChild(script);
    });
    loading[name] = pending;
    return pending.promise;
  }

  function loadChunks(names) {
    return Promise.all(names.map(loadChunk));
  }

  function runDeferred() {
    for (var i = 0; i < deferred.length; i++) {
      var entry = deferred[i];
      var ready = true;
      for (var j = 0; j < entry[1].length; j++) {
        if (!installed[entry[1][j]]) {
          ready = false;
          break;
        }
      }
      if (ready) {
        deferred.splice(i--, 1);
        execute(entry[0]);
      }
    }
  }

  function push(data) {
    var names = data[0];
    var definitions = data[1];
    for (var id in definitions) {
      if (hasOwn.call(definitions, id)) {
        modules[id] = definitions[id];
      }
    }
    for (var i = 0; i < names.length; i++) {
      installed[names[i]] = true;
      if (loading[names[i]]) {
        loading[names[i]].resolve();
        delete loading[names[i]];
      }
    }
    if (data[2] && !requested[names[0]]) {
      deferred.push(data[2]);
    }
    runDeferred();
  }

  var queue = (global[config.global] = global[config.global] || []);
  for (var i = 0; i < queue.length; i++) {
    push(queue[i]);
  }
  queue.push = push;
})(` + globalObject + `, __CONFIG__);
`

type runtimeConfig struct {
	Global     string `json:"global"`
	PublicPath string `json:"publicPath"`
	// Files maps loadable chunk names to their file names
	Files map[string]string `json:"files"`
	// SplitPoints maps the module id of each async split point root to the
	// chunks require.async loads before executing it.
	SplitPoints map[string][]string `json:"splitPoints"`
}

func renderRuntime(cfg runtimeConfig) (string, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return "", err
	}
	return strings.Replace(runtimeSource, "__CONFIG__", string(data), 1), nil
}
