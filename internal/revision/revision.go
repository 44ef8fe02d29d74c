// Package revision resolves the git revision a manifest was deployed
// from, for resource labeling. Everything here is best-effort: a
// manifest outside any repository is perfectly normal.
package revision

import (
	"github.com/go-git/go-git/v5"
	"github.com/rs/zerolog/log"
)

const shortLen = 12

// Detect returns the abbreviated HEAD commit of the repository
// containing dir, or "" when dir is not inside a git work tree.
func Detect(dir string) string {
	repo, err := git.PlainOpenWithOptions(dir, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return ""
	}
	head, err := repo.Head()
	if err != nil {
		log.Debug().Err(err).Str("dir", dir).Msg("repository has no resolvable HEAD")
		return ""
	}
	sha := head.Hash().String()
	if len(sha) > shortLen {
		sha = sha[:shortLen]
	}
	return sha
}
