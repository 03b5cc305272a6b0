package ports

import "github.com/ArkLabsHQ/subswap/internal/core/domain"

type RepoManager interface {
	Swap() domain.SwapRepository
	Close()
}
