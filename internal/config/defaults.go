package config

// DefaultMediaPlatformSuffixes is the frozen host-suffix list the router
// falls back to when a config file does not override it. Grounded in
// original_source's MEDIA_DOMAINS table.
var DefaultMediaPlatformSuffixes = []string{
	"youtube.com", "www.youtube.com", "youtu.be", "m.youtube.com",
	"vimeo.com", "player.vimeo.com",
	"dailymotion.com", "www.dailymotion.com",
	"twitch.tv", "www.twitch.tv", "clips.twitch.tv",
	"facebook.com", "www.facebook.com", "fb.watch",
	"instagram.com", "www.instagram.com",
	"twitter.com", "www.twitter.com", "x.com", "www.x.com",
	"tiktok.com", "www.tiktok.com", "vm.tiktok.com",
	"reddit.com", "www.reddit.com", "v.redd.it",
	"bilibili.com", "www.bilibili.com",
	"nicovideo.jp", "www.nicovideo.jp",
	"soundcloud.com", "www.soundcloud.com",
	"bandcamp.com",
	"mixcloud.com", "www.mixcloud.com",
	"cnn.com", "www.cnn.com",
	"bbc.co.uk", "www.bbc.co.uk", "bbc.com",
	"streamable.com",
	"gfycat.com", "www.gfycat.com",
	"imgur.com", "i.imgur.com",
}

// DefaultStaticExtensions is the frozen path-extension list (without the
// leading dot) the router falls back to when a config file does not
// override it. Grounded in original_source's STATIC_EXTENSIONS table.
var DefaultStaticExtensions = []string{
	"zip", "rar", "7z", "tar", "gz", "bz2", "xz",
	"exe", "msi", "dmg", "pkg", "deb", "rpm", "appimage",
	"iso", "img",
	"pdf", "doc", "docx", "xls", "xlsx", "ppt", "pptx",
	"mp4", "mkv", "avi", "mov", "webm", "flv",
	"mp3", "flac", "wav", "ogg", "m4a", "aac",
	"apk", "ipa",
}
