// Copyright (C) 2022 Sneller, Inc.
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

// Package coordinator drives the distributed execution of a compiled
// query plan: it dispatches non-root fragments to remote backends,
// runs the root fragment locally, streams result batches back to the
// caller, aggregates per-backend status and runtime profiles, and
// orchestrates cooperative cancellation across all participants.
//
// A Coordinator is single-query: construct one per execution and
// discard it once Close has been called.
package coordinator
