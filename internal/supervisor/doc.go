// Clocksync - Biometric Time-Clock Attendance Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/clocksync

/*
Package supervisor runs clocksync's long-lived services under a suture v4
supervisor tree.

# Overview

	RootSupervisor ("clocksync")
	├── StorageSupervisor ("storage-layer")
	│   └── CheckpointGCService
	├── SyncSupervisor ("sync-layer")
	│   ├── SyncService (scheduled cycles)
	│   └── events.Tap (only when NATS is disabled)
	└── APISupervisor ("api-layer")
	    └── HTTPServerService

Crashed services restart with suture's backoff. Each layer counts its own
failures, so a BioTime outage that crash-loops the sync layer does not take
the trigger API down with it.

Supervisor events are logged through sutureslog on the slog logger from
logging.NewSlogLogger, which forwards to zerolog.

# Usage

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger("supervisor"), supervisor.TreeConfig{
	    ShutdownTimeout: cfg.Server.Timeout,
	})
	if err != nil {
	    return err
	}
	tree.AddStorageService(services.NewCheckpointGCService(checkpoints, 0, 0))
	tree.AddSyncService(services.NewSyncService(manager))
	tree.AddAPIService(services.NewHTTPServerService(server, cfg.Server.Timeout))

	return tree.Serve(ctx)
*/
package supervisor
