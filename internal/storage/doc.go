/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package storage records play sessions and the events a runner produced during
// them (lines shown, options offered, choices, commands, the end) so they can be
// listed and exported later. The store is an embedded SQLite file by default;
// a postgres:// DSN selects a PostgreSQL server through pgx instead.
// Variable state is never stored.
package storage
