package instrument

// preamble is the runtime recorder injected ahead of every instrumented
// program. It lives in a single run-scoped namespace (__tr) that the host
// reads back after evaluation; nothing in it leaks across runs because the
// script host never reuses an engine context.
//
// Recorded values are encoded so they survive export to the host intact:
// undefined becomes {"@undef": true} (the host cannot tell exported
// undefined from null), and non-primitives become {"@ref": id} pointing
// into the heap table, which assigns each object a stable identifier on
// first observation.
const preamble = `var __tr = (function () {
	var list = [];
	var frames = [{ name: "Global", global: true, line: 0, vars: [] }];
	var heap = [];
	var output = [];
	var nextId = 1;
	var realConsole = (typeof console === "object" && console !== null) ? console : null;

	function kindOf(v) {
		if (Array.isArray(v)) return "array";
		if (typeof v === "function") return "function";
		return "object";
	}
	function isPrimitive(v) {
		return v === null || (typeof v !== "object" && typeof v !== "function");
	}
	function heapId(v) {
		for (var i = 0; i < heap.length; i++) {
			if (heap[i].ref === v) return heap[i].id;
		}
		var id = "obj-" + (nextId++);
		heap.push({ id: id, ref: v, kind: kindOf(v) });
		return id;
	}
	function encode(v) {
		if (v === undefined) return { "@undef": true };
		if (isPrimitive(v)) return v;
		return { "@ref": heapId(v) };
	}
	function captureFrames(line) {
		var out = [];
		for (var i = 0; i < frames.length; i++) {
			var f = frames[i];
			if (i === frames.length - 1) f.line = line;
			var vars = [];
			for (var j = 0; j < f.vars.length; j++) {
				vars.push([f.vars[j].name, encode(f.vars[j].value)]);
			}
			out.push({ name: f.name, global: !!f.global, line: f.line, vars: vars });
		}
		return out;
	}
	function captureHeap() {
		var out = [];
		// encode may append nested allocations while we walk; the loop
		// condition re-reads heap.length so they get serialized too.
		for (var i = 0; i < heap.length; i++) {
			var e = heap[i];
			var members = [];
			if (e.kind === "array") {
				for (var j = 0; j < e.ref.length; j++) {
					members.push([String(j), encode(e.ref[j])]);
				}
			} else if (e.kind === "object") {
				var keys = Object.keys(e.ref);
				for (var k = 0; k < keys.length; k++) {
					members.push([keys[k], encode(e.ref[keys[k]])]);
				}
			}
			out.push([e.id, { kind: e.kind, members: members }]);
		}
		return out;
	}
	function current() { return frames[frames.length - 1]; }
	function fmtArg(v) {
		if (v === undefined) return "undefined";
		if (v === null) return "null";
		if (typeof v === "object") {
			try { return JSON.stringify(v); } catch (e) { return String(v); }
		}
		return String(v);
	}
	var api = {
		step: function (line) {
			list.push({ line: line, frames: captureFrames(line), heap: captureHeap(), output: output.slice() });
		},
		decl: function (name, value) {
			var vars = current().vars;
			for (var i = 0; i < vars.length; i++) {
				if (vars[i].name === name) { vars[i].value = value; return; }
			}
			vars.push({ name: name, value: value });
		},
		set: function (name, value) {
			for (var i = frames.length - 1; i >= 0; i--) {
				var vars = frames[i].vars;
				for (var j = 0; j < vars.length; j++) {
					if (vars[j].name === name) { vars[j].value = value; return; }
				}
			}
			api.decl(name, value);
		},
		enter: function (label) {
			frames.push({ name: label, global: false, line: 0, vars: [] });
		},
		leave: function (value) {
			if (frames.length > 1) frames.pop();
			return value;
		},
		print: function (args) {
			var parts = [];
			for (var i = 0; i < args.length; i++) parts.push(fmtArg(args[i]));
			output.push(parts.join(" "));
			if (realConsole && typeof realConsole.log === "function") {
				realConsole.log.apply(realConsole, args);
			}
		},
		list: list
	};
	return api;
})();
console = {
	log: function () { __tr.print(arguments); },
	info: function () { __tr.print(arguments); },
	warn: function () { __tr.print(arguments); },
	error: function () { __tr.print(arguments); }
};
`
