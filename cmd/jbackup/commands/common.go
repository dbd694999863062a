// Package commands holds the jbackup CLI's cobra subcommands.
package commands

import (
	"fmt"

	"github.com/JaPNaA/jbackup/internal/repo"
	"github.com/JaPNaA/jbackup/internal/transformer"
	"github.com/JaPNaA/jbackup/internal/transformer/mca"
)

func transformerRegistry() *transformer.Registry {
	return transformer.NewRegistry(map[string]transformer.Factory{
		"minecraft_mca": func() transformer.Transformer { return mca.New() },
	})
}

// resolveRoot returns repoFlag if set, otherwise searches upward from the
// current directory for a ".jbackup" repository.
func resolveRoot(repoFlag string) (string, error) {
	if repoFlag != "" {
		return repoFlag, nil
	}

	root, err := repo.FindRoot(".")
	if err != nil {
		return "", fmt.Errorf("jbackup: %w (use --repo to specify one explicitly)", err)
	}

	return root, nil
}

// loadChain builds the repository's configured transformer chain.
func loadChain(root string) ([]transformer.Transformer, error) {
	cfg, err := repo.LoadConfig(repo.RepoDir(root))
	if err != nil {
		return nil, fmt.Errorf("jbackup: load repository config: %w", err)
	}

	chain, err := transformerRegistry().Build(cfg.Transformers)
	if err != nil {
		return nil, fmt.Errorf("jbackup: %w", err)
	}

	return chain, nil
}
