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

package coordinator

import "github.com/google/uuid"

// QueryToken is a human-loggable query handle, distinct from the
// wire-level QueryId, minted once per Coordinator for log correlation
// (the same role uuid.New() plays for per-request IDs in
// elasticproxy/proxy_http/logging.go).
type QueryToken uuid.UUID

// NewQueryToken mints a fresh token.
func NewQueryToken() QueryToken {
	return QueryToken(uuid.New())
}

func (t QueryToken) String() string {
	return uuid.UUID(t).String()
}
