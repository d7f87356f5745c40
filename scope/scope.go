/*
 * MIT License
 *
 * Copyright (c) 2026 Amulya Labs
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 */

// Package scope computes the storage-path prefix every backend, index store
// and lock manager variant shares for a given repository: (owner, repo).
package scope

import "path"

// Scope identifies the repository a cache belongs to.
type Scope struct {
	Owner string
	Repo  string
}

// New validates and builds a Scope.
func New(owner, repo string) (Scope, bool) {
	if owner == "" || repo == "" {
		return Scope{}, false
	}
	return Scope{Owner: owner, Repo: repo}, true
}

// Prefix returns the scope-relative directory all of a repository's objects
// live under, e.g. "<owner>/<repo>".
func (s Scope) Prefix() string {
	return path.Join(s.Owner, s.Repo)
}

// IndexPath returns the scope-relative path of the index document.
func (s Scope) IndexPath() string {
	return path.Join(s.Prefix(), "index.json")
}

// ArchivesPrefix returns the scope-relative directory archive objects live
// under.
func (s Scope) ArchivesPrefix() string {
	return path.Join(s.Prefix(), "archives")
}

// ArchivePath joins the archives directory with an archive filename.
func (s Scope) ArchivePath(filename string) string {
	return path.Join(s.ArchivesPrefix(), filename)
}

// LocksPrefix returns the scope-relative directory lock objects live under
// (remote backends only; the local backend uses a sibling .lock file).
func (s Scope) LocksPrefix() string {
	return path.Join(s.Prefix(), "locks")
}

// LockPath joins the locks directory with a lock name.
func (s Scope) LockPath(name string) string {
	return path.Join(s.LocksPrefix(), name)
}
