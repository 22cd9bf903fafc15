// Package service provides the business logic layer for duel2048.
//
// The service package implements:
//   - Multi-session game management
//   - Variant loading and listing
//   - Move parsing and dispatch to running games
//   - Agent toggling per session
//
// Core Interfaces:
//
// GameService is the main service interface providing high-level game operations.
// SessionManager handles session creation, retrieval, and lifecycle.
// ConfigManager manages variant loading and validation.
// Game is a running game; the session package provides the implementation.
//
// Architecture:
//
// The service layer sits between the transports (HTTP, WebSocket, MCP, TUI)
// and the running games. Each session owns one Game whose state changes are
// serialized on its own goroutine, so the service does not lock around game
// operations.
//
// Usage:
//
//	sessionMgr := session.NewManager(session.ManagerConfig{})
//	configMgr := config.NewManager("configs")
//	gameService := service.NewGameService(sessionMgr, configMgr)
//
//	info, err := gameService.CreateSession(ctx, "classic")
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	result, err := gameService.Move(ctx, info.ID, "left")
package service
