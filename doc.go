// Copyright 2026 The Botvisor Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use file except in compliance with the License.
// You may obtain a copy of the license at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package botvisor supervises a fleet of independently deployed bots.
// Each bot is a source checkout run as an OS child process under an
// interpreter (node or python).  The supervisor launches the process,
// watches it, restarts it a bounded number of times when it exits with
// a failure, and captures its output into a bounded per-bot log that
// observers can subscribe to in real time.
//
// The pieces are deliberately separate so that they can be assembled
// and tested independently: a Registry holds the authoritative table
// of bots, a Broadcaster stores and fans out log lines, a Supervisor
// drives the per-bot state machine over a pluggable Spawner, a
// TokenGate issues short-lived credentials, and a StatusEmitter pushes
// periodic snapshots.  The rest package exposes all of this over HTTP
// and websockets.
//
// All state is held in memory only.  Nothing survives a restart of the
// supervising process other than the bots' working directories.
package botvisor
