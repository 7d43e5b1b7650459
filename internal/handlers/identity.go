package handlers

import (
	"github.com/laerreal/gic/internal/gitctx"
	"github.com/laerreal/gic/modules/identity"
)

func setIdentity(ctx *gitctx.Context, prefix string, id identity.Identity) error {
	for _, kv := range identity.Env(prefix, id) {
		k, v, _ := splitEnv(kv)
		if err := ctx.Broker.Setenv(k, v); err != nil {
			return err
		}
	}
	return nil
}

// resetIdentity tolerates a missing variable: if the process was
// interrupted mid-run, a later rerun's Reset* may fire before any
// matching Set* of this run ever happened.
func resetIdentity(ctx *gitctx.Context, prefix string) error {
	for _, key := range []string{"NAME", "EMAIL", "DATE"} {
		if err := ctx.Broker.Unsetenv("GIT_" + prefix + "_" + key); err != nil {
			return err
		}
	}
	return nil
}

func splitEnv(kv string) (string, string, bool) {
	for i := 0; i < len(kv); i++ {
		if kv[i] == '=' {
			return kv[:i], kv[i+1:], true
		}
	}
	return kv, "", false
}
