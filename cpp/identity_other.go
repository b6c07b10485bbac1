//go:build !unix

package cpp

import "os"

func statIdentity(fi os.FileInfo) (FileID, bool) {
	return FileID{}, false
}
