// Package mocks provides shared mock implementations for testing.
//
// Mocks expose one XxxFunc field per method, recording every call, so tests can
// override just the behaviour they care about.
//
// # Usage
//
//	import "devteam/internal/mocks"
//
//	func TestSomething(t *testing.T) {
//	    host := mocks.NewMockHost()
//	    host.MergeFunc = func(ctx context.Context, repo string, pr int, opts forge.MergeOptions) error {
//	        return &forge.HostError{Op: "merge", Repo: repo, PR: pr, Err: forge.ErrNotMergeable}
//	    }
//	    // Use host in test...
//	}
//
// # Available Mocks
//
//   - MockHost: Mock for pkg/forge.Host
//   - MockCodeGenerator: Mock for code generation (work.CodeGenerator)
package mocks
