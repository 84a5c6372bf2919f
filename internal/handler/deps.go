package handler

import (
	"quickchat/internal/app/chat"
	"quickchat/internal/app/storage"
	"quickchat/internal/app/store"
	"quickchat/internal/configs"
	"quickchat/internal/pkg/pow"
)

// AppDeps carries everything the handlers need.
type AppDeps struct {
	Hub    *chat.Hub
	Config *configs.AppConfig
	Store  store.Store
	Pow    *pow.Manager

	// Storage is nil when avatar uploads are not configured.
	Storage storage.StorageService
}
