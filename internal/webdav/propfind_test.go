package webdav

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleMultistatus = `<?xml version="1.0"?>
<d:multistatus xmlns:d="DAV:" xmlns:s="http://sabredav.org/ns" xmlns:oc="http://owncloud.org/ns">
  <d:response>
    <d:href>/remote.php/dav/files/alice/Docs/</d:href>
    <d:propstat>
      <d:prop>
        <d:displayname>Docs</d:displayname>
        <d:getlastmodified>Tue, 14 Nov 2023 22:13:20 GMT</d:getlastmodified>
        <d:resourcetype><d:collection/></d:resourcetype>
      </d:prop>
      <d:status>HTTP/1.1 200 OK</d:status>
    </d:propstat>
    <d:propstat>
      <d:prop>
        <d:getcontentlength/>
        <d:getcontenttype/>
      </d:prop>
      <d:status>HTTP/1.1 404 Not Found</d:status>
    </d:propstat>
  </d:response>
  <d:response>
    <d:href>/remote.php/dav/files/alice/Docs/hello%20world.txt</d:href>
    <d:propstat>
      <d:prop>
        <d:displayname>hello world.txt</d:displayname>
        <d:getcontentlength>12</d:getcontentlength>
        <d:getlastmodified>Tue, 14 Nov 2023 22:15:00 GMT</d:getlastmodified>
        <d:getcontenttype>text/plain</d:getcontenttype>
        <d:resourcetype/>
      </d:prop>
      <d:status>HTTP/1.1 200 OK</d:status>
    </d:propstat>
  </d:response>
</d:multistatus>`

func TestParseMultistatus_FileAndFolder(t *testing.T) {
	resources, err := ParseMultistatus([]byte(sampleMultistatus), nil)
	require.NoError(t, err)
	require.Len(t, resources, 2)

	folder := resources[0]
	assert.True(t, folder.IsFolder)
	assert.Equal(t, "Docs", folder.RelativePath)
	assert.Equal(t, "Docs", folder.DisplayName)

	file := resources[1]
	assert.False(t, file.IsFolder)
	assert.Equal(t, "Docs/hello world.txt", file.RelativePath)
	assert.Equal(t, int64(12), file.ContentLength)
	assert.Equal(t, "text/plain", file.ContentType)
	// Tue, 14 Nov 2023 22:15:00 GMT = 1699999200 + 900 = 1700000100 s.
	assert.Equal(t, int64(1700000100000), file.RemoteMtimeMs)
}

func TestParseMultistatus_MissingLastModifiedSkipped(t *testing.T) {
	body := `<?xml version="1.0"?>
<d:multistatus xmlns:d="DAV:">
  <d:response>
    <d:href>/remote.php/dav/files/alice/no-mtime.txt</d:href>
    <d:propstat>
      <d:prop><d:displayname>no-mtime.txt</d:displayname></d:prop>
      <d:status>HTTP/1.1 200 OK</d:status>
    </d:propstat>
  </d:response>
  <d:response>
    <d:href>/remote.php/dav/files/alice/ok.txt</d:href>
    <d:propstat>
      <d:prop>
        <d:getlastmodified>Tue, 14 Nov 2023 22:13:20 GMT</d:getlastmodified>
      </d:prop>
      <d:status>HTTP/1.1 200 OK</d:status>
    </d:propstat>
  </d:response>
</d:multistatus>`

	resources, err := ParseMultistatus([]byte(body), nil)
	require.NoError(t, err)
	require.Len(t, resources, 1)
	assert.Equal(t, "ok.txt", resources[0].RelativePath)
}

func TestParseMultistatus_MissingHrefSkipped(t *testing.T) {
	body := `<?xml version="1.0"?>
<d:multistatus xmlns:d="DAV:">
  <d:response>
    <d:propstat>
      <d:prop><d:getlastmodified>Tue, 14 Nov 2023 22:13:20 GMT</d:getlastmodified></d:prop>
      <d:status>HTTP/1.1 200 OK</d:status>
    </d:propstat>
  </d:response>
</d:multistatus>`

	resources, err := ParseMultistatus([]byte(body), nil)
	require.NoError(t, err)
	assert.Empty(t, resources)
}

func TestParseMultistatus_MalformedXML(t *testing.T) {
	_, err := ParseMultistatus([]byte("<d:multistatus"), nil)
	require.Error(t, err)
}

func TestParseMultistatus_BadDateSkipped(t *testing.T) {
	body := `<?xml version="1.0"?>
<d:multistatus xmlns:d="DAV:">
  <d:response>
    <d:href>/remote.php/dav/files/alice/bad.txt</d:href>
    <d:propstat>
      <d:prop><d:getlastmodified>not a date</d:getlastmodified></d:prop>
      <d:status>HTTP/1.1 200 OK</d:status>
    </d:propstat>
  </d:response>
</d:multistatus>`

	resources, err := ParseMultistatus([]byte(body), nil)
	require.NoError(t, err)
	assert.Empty(t, resources)
}

func TestParseMultistatus_ContentLengthDefaultsZero(t *testing.T) {
	body := `<?xml version="1.0"?>
<d:multistatus xmlns:d="DAV:">
  <d:response>
    <d:href>/remote.php/dav/files/alice/empty.txt</d:href>
    <d:propstat>
      <d:prop>
        <d:getlastmodified>Tue, 14 Nov 2023 22:13:20 GMT</d:getlastmodified>
      </d:prop>
      <d:status>HTTP/1.1 200 OK</d:status>
    </d:propstat>
  </d:response>
</d:multistatus>`

	resources, err := ParseMultistatus([]byte(body), nil)
	require.NoError(t, err)
	require.Len(t, resources, 1)
	assert.Zero(t, resources[0].ContentLength)
}
