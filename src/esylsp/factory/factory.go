package factory

import (
	"fmt"

	"github.com/esy-community/esy-language-server/src/esylsp/controller/resolver"
	"github.com/esy-community/esy-language-server/src/esylsp/entity"
	"github.com/gofrs/uuid"
)

// UUID is a user-defined factory for a random uuid.UUID.
func UUID() uuid.UUID {
	return uuid.Must(uuid.NewV4())
}

// WorkspaceContext is a factory for a workspace context with a fixed
// environment.
func WorkspaceContext(root string) entity.WorkspaceContext {
	return entity.WorkspaceContext{
		RootPath: root,
		Environ:  []string{"PATH=/usr/bin:/bin", "HOME=/home/dev"},
	}
}

// EsyManifestValid is the content of an esy.json declaring both required
// development dependencies.
func EsyManifestValid() string {
	return `{"devDependencies": {"ocaml": "*", "@opam/merlin-lsp": "*"}}`
}

// PackageManifestEmptyEsy is a package.json whose esy section declares no
// dependencies.
func PackageManifestEmptyEsy() string {
	return `{"esy": {"devDependencies": {}}}`
}

// ResolvedDirect is a factory for a resolver outcome pointing at a bundled
// binary directory.
func ResolvedDirect() resolver.Resolved {
	return resolver.Resolved{
		Command:     "/ext/bin/linux-amd64/ocamlmerlin-lsp",
		ToolCommand: "esy",
		SearchPath:  "/ext/bin/linux-amd64:/usr/bin:/bin",
		BinDir:      "/ext/bin/linux-amd64",
	}
}

// ResolvedEsy is a factory for a resolver outcome proxied through esy.
func ResolvedEsy() resolver.Resolved {
	return resolver.Resolved{
		Command:     "ocamlmerlin-lsp",
		ToolCommand: "esy",
		SearchPath:  "/usr/bin:/bin",
	}
}

// Session is a factory for a session in the given state.
func Session(state entity.SessionState, root string) *entity.Session {
	return &entity.Session{
		UUID:          UUID(),
		WorkspaceRoot: root,
		Mode:          entity.ProjectModeEsy,
		State:         state,
	}
}

// SessionNamed is a factory for n distinct sessions across distinct roots.
func SessionNamed(n int) []*entity.Session {
	out := make([]*entity.Session, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, Session(entity.SessionStateIdle, fmt.Sprintf("/workspace/project-%d", i)))
	}
	return out
}
