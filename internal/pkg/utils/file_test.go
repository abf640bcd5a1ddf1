package utils

import "testing"

func TestSafeFileName(t *testing.T) {
	type args struct {
		fileName string
	}
	tests := []struct {
		name    string
		args    args
		want    string
		wantErr bool
	}{
		{name: "simple", args: args{fileName: "call.wav"}, want: "call.wav", wantErr: false},
		{name: "spaces", args: args{fileName: "my call.wav"}, want: "my_call.wav", wantErr: false},
		{name: "path", args: args{fileName: "../../etc/passwd"}, want: "passwd", wantErr: false},
		{name: "windows path", args: args{fileName: "C:\\temp\\a.mp3"}, want: "a.mp3", wantErr: false},
		{name: "unsafe chars", args: args{fileName: "a$%^&b.mp3"}, want: "ab.mp3", wantErr: false},
		{name: "empty", args: args{fileName: "$%^&"}, want: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SafeFileName(tt.args.fileName)
			if (err != nil) != tt.wantErr {
				t.Errorf("SafeFileName() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if got != tt.want {
				t.Errorf("SafeFileName() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSupportAudioExt(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{name: ".wav", want: true},
		{name: ".mp3", want: true},
		{name: ".flac", want: true},
		{name: ".txt", want: false},
		{name: "", want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SupportAudioExt(tt.name); got != tt.want {
				t.Errorf("SupportAudioExt() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAudioContentType(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{name: "a.wav", want: "audio/wav"},
		{name: "a.WAV", want: "audio/wav"},
		{name: "a.mp3", want: "audio/mpeg"},
		{name: "a.ogg", want: "audio/ogg"},
		{name: "noext", want: "audio/mpeg"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := AudioContentType(tt.name); got != tt.want {
				t.Errorf("AudioContentType() = %v, want %v", got, tt.want)
			}
		})
	}
}
