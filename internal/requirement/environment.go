package requirement

import (
	"runtime"
	"strings"
)

// Environment holds the values of PEP 508 marker variables for the platform
// and interpreter the tests will run under.
type Environment map[string]string

// HostEnvironment describes the current machine for an interpreter of the
// given version (for example "3.12.1"). An empty version leaves the version
// variables unset, so markers that depend on them fail to evaluate.
func HostEnvironment(pythonVersion string) Environment {
	return NewEnvironment(runtime.GOOS, runtime.GOARCH, pythonVersion)
}

// NewEnvironment builds the marker variables for a GOOS/GOARCH pair.
func NewEnvironment(goos, goarch, pythonVersion string) Environment {
	env := Environment{
		"implementation_name":            "cpython",
		"platform_python_implementation": "CPython",
		"extra":                          "",
	}

	switch goos {
	case "windows":
		env["os_name"], env["sys_platform"], env["platform_system"] = "nt", "win32", "Windows"
	case "darwin":
		env["os_name"], env["sys_platform"], env["platform_system"] = "posix", "darwin", "Darwin"
	default:
		env["os_name"], env["sys_platform"], env["platform_system"] = "posix", goos, strings.ToUpper(goos[:1])+goos[1:]
	}

	switch goarch {
	case "amd64":
		env["platform_machine"] = "x86_64"
		if goos == "windows" {
			env["platform_machine"] = "AMD64"
		}
	case "arm64":
		env["platform_machine"] = "aarch64"
		if goos == "darwin" {
			env["platform_machine"] = "arm64"
		}
	case "386":
		env["platform_machine"] = "i686"
	default:
		env["platform_machine"] = goarch
	}

	if pythonVersion != "" {
		env["python_full_version"] = pythonVersion
		env["implementation_version"] = pythonVersion
		parts := strings.SplitN(pythonVersion, ".", 3)
		if len(parts) >= 2 {
			env["python_version"] = parts[0] + "." + parts[1]
		} else {
			env["python_version"] = pythonVersion
		}
	}

	return env
}

// With returns a copy of env with key set to value.
func (env Environment) With(key, value string) Environment {
	out := make(Environment, len(env)+1)
	for k, v := range env {
		out[k] = v
	}
	out[key] = value
	return out
}
