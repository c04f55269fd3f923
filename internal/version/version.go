// 包 version：构建版本信息，发布时由链接器注入
package version

var Version = "dev"
